package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// IngestOptions configure an IngestStage.
type IngestOptions struct {
	PollInterval time.Duration
	// OnConnected is called once per session with the resolved identity.
	OnConnected func(identity string)
	// OnError receives the TransportError that ended the session.
	OnError func(err error)
	Logger  *zap.SugaredLogger
}

// IngestStage reads records from a Source and pushes them downstream.
type IngestStage struct {
	source      Source
	sink        RecordSink
	poll        time.Duration
	onConnected func(string)
	onError     func(error)
	log         *zap.SugaredLogger
	w           worker
}

// NewIngestStage builds a stage reading from source into sink.
func NewIngestStage(source Source, sink RecordSink, opts IngestOptions) *IngestStage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	s := &IngestStage{
		source:      source,
		sink:        sink,
		poll:        poll,
		onConnected: opts.OnConnected,
		onError:     opts.OnError,
		log:         log,
		w:           worker{name: "ingest", log: log},
	}
	if s.onConnected == nil {
		s.onConnected = func(string) {}
	}
	if s.onError == nil {
		s.onError = func(error) {}
	}
	return s
}

// Start opens identity on a new worker.
func (s *IngestStage) Start(identity string) error {
	return s.w.start(func(quit <-chan struct{}) { s.run(identity, quit) })
}

// Stop asks the worker to finish and waits for it. A read in progress is
// allowed to complete its timeout.
func (s *IngestStage) Stop() error {
	return s.w.stop(nil)
}

func (s *IngestStage) run(identity string, quit <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := s.source.Open(ctx, identity)
	if err != nil {
		if stopped(quit) {
			return
		}
		s.fail(&TransportError{Identity: identity, Op: "open", Err: err})
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Debugw("close transport", "identity", conn.Identity(), "error", err)
		}
	}()

	s.log.Infow("transport open", "identity", conn.Identity())
	s.onConnected(conn.Identity())

	for !stopped(quit) {
		rec, ok, err := conn.ReadRecord(s.poll)
		if err != nil {
			if stopped(quit) {
				return
			}
			s.fail(&TransportError{Identity: conn.Identity(), Op: "read", Err: err})
			return
		}
		if !ok {
			continue
		}
		if !s.sink.Push(rec, quit) {
			return
		}
	}
}

func (s *IngestStage) fail(err error) {
	s.log.Errorw("transport failed", "error", err)
	s.onError(err)
}
