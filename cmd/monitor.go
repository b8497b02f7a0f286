package cmd

import (
	"expvar"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/hample/sampler"
)

// monitor publishes sampling progress over HTTP via expvar. Observe runs on
// chain goroutines, so every counter it touches must be atomic - which the
// expvar types are.
type monitor struct {
	info    *expvar.Map
	stopped chan struct{}
	server  *http.Server

	Chains       *expvar.Int
	WarmupIters  *expvar.Int
	DrawIters    *expvar.Int
	Transitions  *expvar.Int
	Divergences  *expvar.Int
	LastStepSize *expvar.Float
	RunTime      *expvar.Float
}

// Start begins the monitor on the given address
func (m *monitor) Start(addr string) error {
	if m.info != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	m.info = expvar.NewMap("hample-progress")
	m.stopped = make(chan struct{})
	m.server = &http.Server{Addr: addr}

	// Help the user and redirect to the only thing currently available:
	// the handler from the expvar package
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
	})

	m.Chains = expvar.NewInt("Chains")
	m.WarmupIters = expvar.NewInt("Warmup-Iterations")
	m.DrawIters = expvar.NewInt("Draw-Iterations")
	m.Transitions = expvar.NewInt("Transitions")
	m.Divergences = expvar.NewInt("Divergences")
	m.LastStepSize = expvar.NewFloat("Last-Step-Size")
	m.RunTime = expvar.NewFloat("Run-Time")

	// Actual server that will close the stopped channel on exit
	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		fmt.Fprintf(os.Stderr, "HTTP now available at %v (see debug/vars/)\n", m.server.Addr)
		close(started)
		m.server.ListenAndServe()
	}()

	<-started
	return nil
}

// Observe is the sampler progress callback
func (m *monitor) Observe(p sampler.Progress) {
	m.Transitions.Add(1)
	if p.Warmup {
		m.WarmupIters.Add(1)
	} else {
		m.DrawIters.Add(1)
	}
	if p.Diverged {
		m.Divergences.Add(1)
	}
	m.LastStepSize.Set(p.StepSize)
}

// Stop shuts the monitor down, waiting briefly for the server to exit
func (m *monitor) Stop() {
	if m.info == nil {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
		fmt.Fprintf(os.Stderr, "HTTP Info Stopped\n")
	case <-time.After(2 * time.Second):
		fmt.Fprintf(os.Stderr, "HTTP would NOT stop: just continuing on\n")
	}
}
