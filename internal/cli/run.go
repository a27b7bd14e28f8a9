package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/hrnotify/internal/app"
	"github.com/nhle/hrnotify/internal/credential"
	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/metrics"
	"github.com/nhle/hrnotify/internal/session"
)

// run starts the session and the terminal UI, and tears both down when
// the UI exits.
func (e *env) run(ctx context.Context) error {
	vault, err := credential.OpenVault()
	if err != nil {
		return err
	}
	sess, err := loadSession(vault)
	if err != nil {
		return err
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := e.cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logging.Error().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
			}
		}()
	}

	svc, err := session.Initialize(ctx, session.Options{
		Session: sess,
		Config:  e.cfg,
		Store:   st,
	})
	if err != nil && !errors.Is(err, session.ErrAlreadyInitialized) {
		return fmt.Errorf("starting session: %w", err)
	}
	defer func() {
		if err := session.Shutdown(); err != nil {
			logging.Warn().Err(err).Msg("session shutdown")
		}
	}()

	logging.Info().Str("user", sess.UserID).Str("role", string(sess.Role)).Msg("session started")

	p := tea.NewProgram(app.New(svc), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
