//go:build integration

package integration

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/api"
	"github.com/eliteGoblin/focusd/detox/internal/config"
	"github.com/eliteGoblin/focusd/detox/internal/daemon"
	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/infra"
	"github.com/eliteGoblin/focusd/detox/test/fixtures"
)

// runningDaemon is one engine plus an HTTP front end on a random port.
type runningDaemon struct {
	rt     *daemon.Runtime
	srv    *httptest.Server
	client *api.Client
	cancel context.CancelFunc
	done   chan error
}

func startDaemon(cfg *config.Config, paths infra.DataPaths, desktop *fixtures.FakeDesktop) *runningDaemon {
	logger, _ := zap.NewDevelopment()
	rt, err := daemon.Build(context.Background(), daemon.Options{
		Config:         cfg,
		Paths:          paths,
		Version:        "integration",
		Logger:         logger,
		Runner:         desktop,
		ProcessManager: desktop,
		Clock:          infra.SystemClock{},
		GOOS:           "darwin",
		DisableServer:  true,
	})
	Expect(err).NotTo(HaveOccurred())

	srv := httptest.NewServer(rt.Handler)
	ctx, cancel := context.WithCancel(context.Background())
	d := &runningDaemon{
		rt:     rt,
		srv:    srv,
		client: api.NewClient(srv.URL, srv.Client()),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { d.done <- rt.Engine.Run(ctx) }()
	return d
}

func (d *runningDaemon) stop() {
	d.cancel()
	Eventually(d.done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
	d.srv.Close()
	Expect(d.rt.Engine.Close()).To(Succeed())
}

func integrationConfig(backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = backend
	cfg.Monitor.ForegroundCommand = []string{"frontmost"}
	cfg.Monitor.PollInterval = 20 * time.Millisecond
	cfg.Monitor.ProbeInterval = 50 * time.Millisecond
	cfg.Monitor.ResendEvery = 2
	cfg.Monitor.LockCommand = []string{"lockscreen", "--minutes", "{minutes}"}
	cfg.Whitelist = []string{"Maps"}
	return cfg
}

var _ = Describe("Detox engine", func() {
	var (
		ctx     context.Context
		tmpDir  string
		paths   infra.DataPaths
		desktop *fixtures.FakeDesktop
		cfg     *config.Config
		d       *runningDaemon
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "detoxd-integration-*")
		Expect(err).NotTo(HaveOccurred())

		paths = infra.PathsFor(infra.ExecModeUser, filepath.Join(tmpDir, "data"))
		desktop = fixtures.NewFakeDesktop()
		desktop.Launch("Finder")
		cfg = integrationConfig(config.BackendEncrypted)
	})

	JustBeforeEach(func() {
		d = startDaemon(cfg, paths, desktop)
	})

	AfterEach(func() {
		if d != nil {
			d.stop()
		}
		os.RemoveAll(tmpDir)
	})

	Describe("enforcement", func() {
		Context("when a session is active", func() {
			JustBeforeEach(func() {
				_, err := d.client.Start(ctx, 30)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should present the lock surface with the session length", func() {
				Eventually(desktop.Ran).Should(ContainElement("lockscreen --minutes 30"))
			})

			It("should kill apps outside the whitelist", func() {
				desktop.Launch("Steam")

				Eventually(desktop.Killed, 2*time.Second).Should(ContainElement("Steam"))
				Eventually(func() []domain.NoticeKind {
					notices, _ := d.client.Notices(ctx, 0)
					var kinds []domain.NoticeKind
					for _, n := range notices {
						kinds = append(kinds, n.Kind)
					}
					return kinds
				}).Should(ContainElement(domain.NoticeAppBlocked))
			})

			It("should leave whitelisted and essential apps running", func() {
				desktop.Launch("Maps")
				Consistently(func() bool { return desktop.Running("Maps") }, 300*time.Millisecond).Should(BeTrue())

				desktop.Launch("FaceTime")
				Consistently(func() bool { return desktop.Running("FaceTime") }, 300*time.Millisecond).Should(BeTrue())
				Expect(desktop.Running("Finder")).To(BeTrue())
			})

			It("should refuse whitelist changes", func() {
				_, err := d.client.AddWhitelisted(ctx, "Steam")
				Expect(err).To(MatchError(domain.ErrSessionActive))
			})
		})

		Context("when no session is active", func() {
			It("should not block anything", func() {
				desktop.Launch("Steam")
				Consistently(func() bool { return desktop.Running("Steam") }, 300*time.Millisecond).Should(BeTrue())
			})
		})
	})

	Describe("emergency unlock", func() {
		It("should end the session and spend one unlock", func() {
			_, err := d.client.Start(ctx, 60)
			Expect(err).NotTo(HaveOccurred())

			res, err := d.client.Unlock(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stopped).To(BeTrue())
			Expect(res.Outcome).To(Equal(domain.OutcomeEmergency))
			Expect(res.BudgetRemaining).To(Equal(2))

			records, err := d.client.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].DurationMinutes).To(Equal(60))

			desktop.Launch("Steam")
			Consistently(func() bool { return desktop.Running("Steam") }, 200*time.Millisecond).Should(BeTrue())
		})

		It("should refuse once the budget is spent", func() {
			for i := 0; i < 3; i++ {
				_, err := d.client.Start(ctx, 5)
				Expect(err).NotTo(HaveOccurred())
				_, err = d.client.Unlock(ctx, false)
				Expect(err).NotTo(HaveOccurred())
			}

			_, err := d.client.Start(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.client.Unlock(ctx, false)
			Expect(err).To(MatchError(domain.ErrBudgetExhausted))

			st, err := d.client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.State).To(Equal(domain.StateActive))
			Expect(st.EmergencyUnlocks).To(Equal(0))
		})

		It("should be a no-op without a session", func() {
			res, err := d.client.Unlock(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NoOp).To(BeTrue())
			Expect(res.BudgetRemaining).To(Equal(3))
		})
	})

	Describe("premium unlock", func() {
		It("should require a purchase and then spend no budget", func() {
			_, err := d.client.Start(ctx, 20)
			Expect(err).NotTo(HaveOccurred())

			_, err = d.client.Unlock(ctx, true)
			Expect(err).To(MatchError(domain.ErrNotPremium))

			Expect(d.client.RequestPurchase(ctx)).To(Succeed())
			st, err := d.client.CompletePurchase(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Premium).To(BeTrue())

			res, err := d.client.Unlock(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomePremium))
			Expect(res.BudgetRemaining).To(Equal(3))
		})
	})

	Describe("monitoring loss", func() {
		It("should end the session as degraded", func() {
			_, err := d.client.Start(ctx, 30)
			Expect(err).NotTo(HaveOccurred())

			desktop.FailQueries(true)

			Eventually(func() domain.SessionState {
				st, _ := d.client.Status(ctx)
				return st.State
			}, 2*time.Second).Should(Equal(domain.StateInactive))

			records, err := d.client.History(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Outcome).To(Equal(domain.OutcomeDegraded))
		})

		Context("with keep-locked policy", func() {
			BeforeEach(func() {
				cfg.Session.DegradedPolicy = "keep-locked"
			})

			It("should keep the session running", func() {
				_, err := d.client.Start(ctx, 30)
				Expect(err).NotTo(HaveOccurred())

				desktop.FailQueries(true)
				Eventually(func() bool {
					st, _ := d.client.Status(ctx)
					return st.MonitoringDegraded
				}, 2*time.Second).Should(BeTrue())

				st, err := d.client.Status(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(st.State).To(Equal(domain.StateActive))
			})
		})

		It("should refuse to start without the foreground command", func() {
			desktop.RemoveBinary("frontmost")

			_, err := d.client.Start(ctx, 30)
			Expect(err).To(MatchError(domain.ErrCapabilityMissing))
		})
	})

	Describe("restart", func() {
		It("should resume an active session from the encrypted store", func() {
			_, err := d.client.Start(ctx, 90)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.client.Unlock(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.client.Start(ctx, 45)
			Expect(err).NotTo(HaveOccurred())

			d.stop()
			d = startDaemon(cfg, paths, desktop)

			st, err := d.client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.State).To(Equal(domain.StateActive))
			Expect(st.Session.PlannedMinutes()).To(Equal(45))
			Expect(st.EmergencyUnlocks).To(Equal(2))
			Expect(st.HistoryLen).To(Equal(1))
			Expect(st.Whitelist).To(ConsistOf("maps"))
		})
	})

	Describe("schedule", func() {
		BeforeEach(func() {
			cfg.Schedule.Enabled = true
			cfg.Schedule.Start = "00:00"
			cfg.Schedule.End = "00:00"
		})

		It("should start a session as soon as the window is open", func() {
			Eventually(func() domain.SessionState {
				st, _ := d.client.Status(ctx)
				return st.State
			}).Should(Equal(domain.StateActive))
		})

		It("should not relock after a restart once the window's session was unlocked", func() {
			Eventually(func() domain.SessionState {
				st, _ := d.client.Status(ctx)
				return st.State
			}).Should(Equal(domain.StateActive))
			_, err := d.client.Unlock(ctx, false)
			Expect(err).NotTo(HaveOccurred())

			d.stop()
			d = startDaemon(cfg, paths, desktop)

			Consistently(func() domain.SessionState {
				st, _ := d.client.Status(ctx)
				return st.State
			}, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(domain.StateInactive))
		})
	})

	Describe("duration selector", func() {
		It("should start a session with the dialled duration", func() {
			angle := 90.0
			sel, err := d.client.Select(ctx, api.SelectorRequest{Angle: &angle})
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Minutes).To(Equal(45))

			sess, err := d.client.Start(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.PlannedMinutes()).To(Equal(45))

			st, err := d.client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.PreviewMinutes).To(Equal(45))
		})

		It("should pause the countdown while the dial is dragged", func() {
			_, err := d.client.Start(ctx, 10)
			Expect(err).NotTo(HaveOccurred())

			_, err = d.client.Select(ctx, api.SelectorRequest{Pointer: &api.PointerInput{Phase: api.PointerBegin, X: 1}})
			Expect(err).NotTo(HaveOccurred())
			st, err := d.client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Editing).To(BeTrue())
			Expect(st.Session.Paused).To(BeTrue())

			_, err = d.client.Select(ctx, api.SelectorRequest{Pointer: &api.PointerInput{Phase: api.PointerEnd}})
			Expect(err).NotTo(HaveOccurred())
			st, err = d.client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Session.Paused).To(BeFalse())
		})

		It("should reject typed input without digits before it reaches the session", func() {
			_, err := d.client.StartText(ctx, "a while")
			Expect(err).To(MatchError(domain.ErrInvalidDuration))

			st, err := d.client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.State).To(Equal(domain.StateInactive))
		})
	})

	Describe("metrics", func() {
		It("should count started sessions", func() {
			_, err := d.client.Start(ctx, 10)
			Expect(err).NotTo(HaveOccurred())

			resp, err := d.srv.Client().Get(d.srv.URL + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("detox_session_started_total 1"))
			Expect(string(body)).To(ContainSubstring("detox_budget_remaining"))
		})
	})
})
