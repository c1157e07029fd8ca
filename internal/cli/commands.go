package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"auction-worker/internal/api/handlers"
	"auction-worker/internal/domain"
	"auction-worker/internal/infrastructure/redis"
	"auction-worker/internal/infrastructure/websocket"
	"auction-worker/internal/services"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run <tender_id>",
	Short: "Prepare, schedule and run the auction until it ends",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := newWorker(ctx, args[0])
		if err != nil {
			return err
		}
		defer w.Close()

		return w.run(ctx)
	},
}

var prepareCmd = &cobra.Command{
	Use:   "prepare <tender_id>",
	Short: "Build and store the auction document without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorker(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer w.Close()

		return w.controller.Prepare(cmd.Context())
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <tender_id>",
	Short: "Mark the auction as canceled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, args[0], (*services.LifecycleController).Cancel)
	},
}

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule <tender_id>",
	Short: "Mark the auction as rescheduled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, args[0], (*services.LifecycleController).Reschedule)
	},
}

var announceCmd = &cobra.Command{
	Use:   "announce <tender_id>",
	Short: "Store bids information of a finished auction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, args[0], (*services.LifecycleController).PostAnnounce)
	},
}

type operation func(c *services.LifecycleController, ctx context.Context) (services.Outcome, error)

func runOperation(cmd *cobra.Command, tenderID string, op operation) error {
	w, err := newWorker(cmd.Context(), tenderID)
	if err != nil {
		return err
	}
	defer w.Close()

	outcome, err := op(w.controller, cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cmd.Name(), outcome)
	return nil
}

// run holds the worker lock, prepares and schedules the auction, and serves
// the control API until the auction completes or ctx is cancelled.
func (w *worker) run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx, w.tenderID, w.instanceID)
		if err != nil {
			return fmt.Errorf("acquire worker lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("auction %s is driven by another worker", w.tenderID)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.lock.Release(releaseCtx, w.tenderID, w.instanceID); err != nil {
				w.log.Error("Failed to release worker lock", "error", err)
			}
		}()
	}

	if err := w.controller.Prepare(ctx); err != nil {
		if errors.Is(err, domain.ErrAuctionTerminal) {
			w.log.Info("Auction already finished, nothing to run", "tender_id", w.tenderID)
			return nil
		}
		return err
	}
	if err := w.controller.Schedule(ctx); err != nil {
		return err
	}
	// Schedule started the scheduler; stop it before the lock is released.
	defer w.controller.Close()

	if w.rdb != nil {
		notifier := websocket.NewWebSocketNotifier(w.connManager)
		subscriber := redis.NewEventSubscriber(w.rdb, w.log)
		go func() {
			err := subscriber.SubscribeToDocumentEvents(ctx, w.tenderID, notifier.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error("Event subscriber failed", "error", err)
			}
		}()
	}

	e := handlers.NewServer(
		handlers.NewAuctionHandler(w.controller, w.log),
		handlers.NewWebSocketHandler(w.connManager, w.log),
		w.log,
	)
	serverAddr := fmt.Sprintf("%s:%d", w.cfg.Server.Host, w.cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		w.log.Info("Starting control server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-w.controller.Done():
		w.log.Info("Auction completed", "tender_id", w.tenderID)
	case <-ctx.Done():
		w.log.Info("Shutting down auction worker", "tender_id", w.tenderID)
	case runErr = <-serverErr:
		w.log.Error("Control server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		w.log.Error("Server forced to shutdown", "error", err)
	}

	return runErr
}
