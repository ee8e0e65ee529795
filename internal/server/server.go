// Package server ties the order-entry TCP listener, the command updater and
// the periodic batch driver together. Connection handlers parse lines into
// commands and hand them to a single updater goroutine; a ticker fires the
// batch at a fixed tempo and publishes the report once the book lock is
// released.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frequent-batch-auction/internal/auction"
	"github.com/frequent-batch-auction/internal/book"
	"github.com/frequent-batch-auction/internal/config"
	"github.com/frequent-batch-auction/pkg/observability"
)

// Server is the order-entry front end and batch scheduler.
type Server struct {
	logger  *observability.Logger
	perf    *observability.PerformanceLogger
	metrics *observability.MetricsProvider
	tracing *observability.TracingProvider
	cfg     *config.Config
	book    *book.Book

	commands chan Command
	reports  chan auction.BatchReport
	listener net.Listener
	conns    sync.Map // net.Conn -> struct{}

	isRunning int32
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// Stats
	batchesRun   int64
	tradesTotal  int64
	volumeTraded int64
	lastBatchNs  int64
}

// New creates the server. Start must be called before it accepts orders.
func New(obs *observability.Provider, cfg *config.Config, bk *book.Book) *Server {
	return &Server{
		logger:   obs.Logger,
		perf:     observability.NewPerformanceLogger(obs.Logger),
		metrics:  obs.Metrics,
		tracing:  obs.Tracing,
		cfg:      cfg,
		book:     bk,
		commands: make(chan Command, 4096),
		reports:  make(chan auction.BatchReport, 64),
		stopChan: make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop, the book updater,
// the batch ticker and the report publisher.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 0, 1) {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.isRunning, 0)
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Server.ListenAddr, err)
	}
	s.listener = listener

	s.wg.Add(4)
	go s.acceptLoop(ctx)
	go s.updateBook(ctx)
	go s.tickLoop(ctx)
	go s.publishReports(ctx)

	s.logger.Info(ctx, "Batch auction server started", map[string]interface{}{
		"listen_addr":     listener.Addr().String(),
		"interval_millis": s.cfg.Engine.IntervalMillis,
	})
	return nil
}

// Stop closes the listener and every open connection, drains the command
// queue into the book, and waits for an in-flight batch to finish.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 1, 0) {
		return fmt.Errorf("server is not running")
	}

	s.logger.Info(ctx, "Stopping batch auction server", nil)

	close(s.stopChan)
	s.listener.Close()
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.Server.DrainTimeout):
		return fmt.Errorf("timed out draining server after %s", s.cfg.Server.DrainTimeout)
	}

	s.logger.Info(ctx, "Batch auction server stopped", nil)
	return nil
}

// Addr returns the bound listener address, usable once Start returned.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Accepting reports whether the server is running, for health checks.
func (s *Server) Accepting() bool {
	return atomic.LoadInt32(&s.isRunning) == 1
}

// LastBatchTime returns when the most recent batch completed.
func (s *Server) LastBatchTime() time.Time {
	ns := atomic.LoadInt64(&s.lastBatchNs)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stats is a point-in-time view of engine activity.
type Stats struct {
	BatchesRun    int64  `json:"batches_run"`
	Trades        int64  `json:"trades"`
	VolumeTraded  int64  `json:"volume_traded"`
	RestingBids   int    `json:"resting_bids"`
	RestingAsks   int    `json:"resting_asks"`
	RestingBidQty uint64 `json:"resting_bid_qty"`
	RestingAskQty uint64 `json:"resting_ask_qty"`
	BestBid       string `json:"best_bid,omitempty"`
	BestAsk       string `json:"best_ask,omitempty"`
}

// Stats returns engine counters and the current state of the book, derived
// from one consistent snapshot.
func (s *Server) Stats() Stats {
	bids, asks := s.book.Snapshot()

	stats := Stats{
		BatchesRun:   atomic.LoadInt64(&s.batchesRun),
		Trades:       atomic.LoadInt64(&s.tradesTotal),
		VolumeTraded: atomic.LoadInt64(&s.volumeTraded),
		RestingBids:  len(bids),
		RestingAsks:  len(asks),
	}

	var bestBid, bestAsk decimal.Decimal
	for _, o := range bids {
		stats.RestingBidQty += uint64(o.Qty)
		if bestBid.IsZero() || o.Price.GreaterThan(bestBid) {
			bestBid = o.Price
		}
	}
	for _, o := range asks {
		stats.RestingAskQty += uint64(o.Qty)
		if bestAsk.IsZero() || o.Price.LessThan(bestAsk) {
			bestAsk = o.Price
		}
	}
	if !bestBid.IsZero() {
		stats.BestBid = bestBid.String()
	}
	if !bestAsk.IsZero() {
		stats.BestAsk = bestAsk.String()
	}

	return stats
}

// acceptLoop accepts order-entry connections until the listener closes.
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				s.logger.Warn(ctx, "Accept failed", map[string]interface{}{"error": err.Error()})
				continue
			}
		}

		s.conns.Store(conn, struct{}{})
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads newline-delimited commands from one session. EOF is
// a clean close; a malformed line drops only this session.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.conns.Delete(conn)
	defer conn.Close()

	s.metrics.ConnectionOpened(ctx)
	defer s.metrics.ConnectionClosed(ctx)

	connLog := s.logger.WithFields(map[string]interface{}{
		"remote": conn.RemoteAddr().String(),
	})
	connLog.Debug(ctx, "Connection opened")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, s.cfg.Server.MaxLineBytes), s.cfg.Server.MaxLineBytes)

	for scanner.Scan() {
		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			connLog.Error(ctx, "Dropping connection on malformed command", err, map[string]interface{}{
				"line": scanner.Text(),
			})
			return
		}

		select {
		case s.commands <- cmd:
		case <-s.stopChan:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-s.stopChan:
		default:
			connLog.Warn(ctx, "Connection read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	connLog.Debug(ctx, "Connection closed")
}

// updateBook is the single consumer of the command queue. On shutdown it
// drains whatever is already queued so no accepted command is lost.
func (s *Server) updateBook(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case cmd := <-s.commands:
			s.applyCommand(ctx, cmd)
		case <-s.stopChan:
			for {
				select {
				case cmd := <-s.commands:
					s.applyCommand(ctx, cmd)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) applyCommand(ctx context.Context, cmd Command) {
	s.metrics.RecordCommand(ctx, string(cmd.Op), string(cmd.Side))

	switch cmd.Op {
	case OpAdd:
		if _, err := s.book.Add(cmd.Side, cmd.Price, cmd.Qty); err != nil {
			s.logger.Warn(ctx, "Rejected order", map[string]interface{}{
				"side":  cmd.Side,
				"price": cmd.Price.String(),
				"qty":   cmd.Qty,
				"error": err.Error(),
			})
		}
	case OpCancel:
		if !s.book.Cancel(cmd.Side, cmd.Price, cmd.Qty) {
			s.logger.Debug(ctx, "Cancel matched nothing", map[string]interface{}{
				"side":  cmd.Side,
				"price": cmd.Price.String(),
				"qty":   cmd.Qty,
			})
		}
	}
}

// tickLoop fires a batch at the configured tempo. An invariant breach stops
// the loop: the engine never trades on a book it cannot trust, and the batch
// freshness health check turns unhealthy shortly after.
func (s *Server) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Engine.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.runBatch(ctx); err != nil {
				s.logger.Error(ctx, "Invariant breach, halting batch loop", err)
				return
			}
		}
	}
}

// runBatch executes one batch under the book lock and hands the report to
// the publisher once the lock is released.
func (s *Server) runBatch(ctx context.Context) error {
	ctx, span := s.tracing.StartSpan(ctx, "auction.batch")
	defer span.End()

	start := time.Now()
	report, err := s.book.RunBatch()
	duration := time.Since(start)

	if err != nil {
		observability.RecordError(ctx, err)
		return err
	}

	atomic.StoreInt64(&s.lastBatchNs, time.Now().UnixNano())
	atomic.AddInt64(&s.batchesRun, 1)
	if report.Trade() {
		atomic.AddInt64(&s.tradesTotal, 1)
		atomic.AddInt64(&s.volumeTraded, int64(report.Qty))
	}

	bids, asks := s.book.Depth()
	s.metrics.RecordBatch(ctx, string(report.Outcome), duration,
		len(report.ClearedBids), len(report.ClearedAsks), report.Qty)
	s.metrics.UpdateRestingOrders(ctx, bids, asks)
	s.perf.LogDuration(ctx, "batch", duration, map[string]interface{}{
		"outcome": report.Outcome,
	})
	// A batch that outlasts its own tick is eating the next one.
	s.perf.LogSlowOperation(ctx, "batch", duration, s.cfg.Engine.Interval(), map[string]interface{}{
		"resting_bids": bids,
		"resting_asks": asks,
	})

	select {
	case s.reports <- report:
	default:
		s.logger.Warn(ctx, "Report channel full, dropping report", nil)
	}
	return nil
}

// publishReports renders batch reports outside the tick path.
func (s *Server) publishReports(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case report := <-s.reports:
			s.publish(ctx, report)
		case <-s.stopChan:
			for {
				select {
				case report := <-s.reports:
					s.publish(ctx, report)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) publish(ctx context.Context, report auction.BatchReport) {
	fmt.Println(FormatReport(report))

	if report.Trade() {
		s.logger.Info(ctx, "Batch cleared", map[string]interface{}{
			"price":        report.Price.String(),
			"qty":          report.Qty,
			"cleared_bids": len(report.ClearedBids),
			"cleared_asks": len(report.ClearedAsks),
		})
	}
}

// FormatReport renders a report the way the reference sink prints it.
func FormatReport(report auction.BatchReport) string {
	if !report.Trade() {
		return "No Trade"
	}
	return fmt.Sprintf("Batch: cleared BID=%d, cleared ASK=%d, price=%s, qty=%d",
		len(report.ClearedBids), len(report.ClearedAsks), report.Price, report.Qty)
}
