package server

import (
	"sync"

	"go.uber.org/zap"
)

// optionalService keeps a failed auxiliary service from stopping the
// lifecycle: a Start error is logged and Start then blocks until Stop.
type optionalService struct {
	name   string
	svc    Service
	logger *zap.Logger
	stop   chan struct{}
	once   sync.Once
}

// Optional wraps svc so that its failure is logged instead of returned.
// Only services the game can run without (admin, WebSocket) should be wrapped.
//
// Precondition: svc and logger must be non-nil.
// Postcondition: The returned Service's Start returns nil, and only after Stop.
func Optional(name string, svc Service, logger *zap.Logger) Service {
	return &optionalService{
		name:   name,
		svc:    svc,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func (o *optionalService) Start() error {
	if err := o.svc.Start(); err != nil {
		o.logger.Error("optional service failed, continuing without it",
			zap.String("service", o.name),
			zap.Error(err),
		)
	}
	<-o.stop
	return nil
}

func (o *optionalService) Stop() {
	o.once.Do(func() {
		close(o.stop)
		o.svc.Stop()
	})
}
