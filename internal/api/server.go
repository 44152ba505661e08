// Package api exposes the C9 online segmentor (§4.9.1) over a JSON-codec
// gRPC control plane: a client streams audio_chunk frames and receives
// back the segments frames RunOnlineSegmentation produces, one Segmentor
// instance kept per session so state (old-segment cursor, cumulative
// count) survives across chunks.
package api

import (
	"fmt"
	"io"
	"log"
	"sync"

	"speakerdiarize/internal/config"
	"speakerdiarize/onlineseg"
	"speakerdiarize/segments"
)

// Server drives the control-plane Stream RPC, dispatching each audio_chunk
// to the Segmentor owned by its session.
type Server struct {
	Config *config.Config

	sampleRate   int
	baseScale    segments.Scale
	minSubsegDur float64

	mu         sync.Mutex
	segmentors map[string]*onlineseg.Segmentor
}

// NewServer builds a control-plane server on the scale at
// cfg.ClusteringScaleIndex, falling back to the finest configured scale when
// that index is out of range.
func NewServer(cfg *config.Config, sampleRate int) *Server {
	idx := len(cfg.WindowLengthsInSec) - 1
	if cfg.ClusteringScaleIndex >= 0 && cfg.ClusteringScaleIndex < len(cfg.WindowLengthsInSec) {
		idx = cfg.ClusteringScaleIndex
	}
	return &Server{
		Config:     cfg,
		sampleRate: sampleRate,
		baseScale: segments.Scale{
			WindowSec: cfg.WindowLengthsInSec[idx],
			ShiftSec:  cfg.ShiftLengthsInSec[idx],
		},
		minSubsegDur: segments.DefaultMinSubsegmentDuration,
		segmentors:   make(map[string]*onlineseg.Segmentor),
	}
}

func (s *Server) segmentorFor(sessionID string) *onlineseg.Segmentor {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segmentors[sessionID]
	if !ok {
		seg = onlineseg.New(s.sampleRate)
		s.segmentors[sessionID] = seg
	}
	return seg
}

// Stream implements ControlServer: it reads audio_chunk frames until the
// client closes the stream, running each through the session's Segmentor
// and replying with a segments frame.
func (s *Server) Stream(stream Control_StreamServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("api: recv: %w", err)
		}

		switch msg.Type {
		case "audio_chunk":
			seg := s.segmentorFor(msg.SessionID)
			vadTimestamps := intervalsFromRanges(msg.VadRanges)
			result := seg.RunOnlineSegmentation(msg.Samples, vadTimestamps, msg.FrameStart, msg.BufferStart, msg.BufferEnd, s.baseScale, s.minSubsegDur)
			reply := &ControlMessage{
				Type:       "segments",
				SessionID:  msg.SessionID,
				Ranges:     rangesFromIntervals(result.Ranges),
				Cumulative: len(result.Cumulative),
			}
			if err := stream.Send(reply); err != nil {
				return fmt.Errorf("api: send: %w", err)
			}
		default:
			log.Printf("api: unrecognized control message type %q", msg.Type)
		}
	}
}
