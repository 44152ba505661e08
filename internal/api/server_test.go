package api

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"speakerdiarize/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// jsonClient is a lightweight gRPC JSON client for the Control stream.
type jsonClient struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

func newJSONClient(t *testing.T, addr string) *jsonClient {
	t.Helper()

	conn, err := grpc.Dial(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			if len(addr) > 5 && addr[:5] == "unix:" {
				return net.DialTimeout("unix", addr[5:], 3*time.Second)
			}
			return net.DialTimeout("tcp", addr, 3*time.Second)
		}),
	)
	if err != nil {
		t.Fatalf("dial grpc: %v", err)
	}

	stream, err := conn.NewStream(context.Background(), &_Control_serviceDesc.Streams[0], "/speakerdiarize.Control/Stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	return &jsonClient{conn: conn, stream: stream}
}

func (c *jsonClient) send(msg ControlMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return err
	}
	return c.stream.SendMsg(any)
}

func (c *jsonClient) recv(timeout time.Duration) (ControlMessage, error) {
	var msg ControlMessage
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	recvDone := make(chan error, 1)
	go func() { recvDone <- c.stream.RecvMsg(&msg) }()
	select {
	case err := <-recvDone:
		return msg, err
	case <-ctx.Done():
		return ControlMessage{}, ctx.Err()
	}
}

func (c *jsonClient) close() {
	_ = c.stream.CloseSend()
	_ = c.conn.Close()
}

func startTestServer(t *testing.T, socketPath string) *Server {
	t.Helper()

	cfg := &config.Config{
		GRPCAddr:             "unix:" + socketPath,
		WindowLengthsInSec:   []float64{1.5, 0.75},
		ShiftLengthsInSec:    []float64{0.75, 0.25},
		ClusteringScaleIndex: 1,
	}

	s := NewServer(cfg, 16000)
	go s.ServeGRPC()
	time.Sleep(300 * time.Millisecond)
	return s
}

func TestControlStream_AudioChunkProducesSegments(t *testing.T) {
	socket := "/tmp/speakerdiarize-test.sock"
	_, _ = net.Dial("unix", socket)

	s := startTestServer(t, socket)
	t.Cleanup(func() { _, _ = net.Dial("unix", socket) })

	client := newJSONClient(t, s.Config.GRPCAddr)
	defer client.close()

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.01
	}

	err := client.send(ControlMessage{
		Type:        "audio_chunk",
		SessionID:   "sess-1",
		Samples:     samples,
		FrameStart:  0,
		BufferStart: 0,
		BufferEnd:   1.0,
		VadRanges:   []Range{{Start: 0, End: 1.0}},
	})
	if err != nil {
		t.Fatalf("send audio_chunk: %v", err)
	}

	msg, err := client.recv(2 * time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Type != "segments" {
		t.Fatalf("expected segments reply, got %q", msg.Type)
	}
	if msg.SessionID != "sess-1" {
		t.Fatalf("expected session id echoed back, got %q", msg.SessionID)
	}
	if len(msg.Ranges) == 0 {
		t.Fatalf("expected at least one subsegment range")
	}
}
