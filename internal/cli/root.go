// Package cli implements trackerctl, a command line client for the tracking
// and results-framework views of a project.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"trackhub/internal/gateway"
	"trackhub/internal/progress"
	"trackhub/pkg/logger"
	"trackhub/pkg/util"
)

// Settings are resolved from flags, TRACKHUB_* environment variables and an
// optional config file, in that order of precedence.
type Settings struct {
	GatewayURL  string
	Token       string
	JWTSecret   string
	User        string
	Role        string
	Timeout     time.Duration
	Concurrency int
	Weighting   progress.Weighting
	JSON        bool
	Verbose     bool
}

// GatewayFactory builds the gateway used by a command.
type GatewayFactory func(s Settings, log *zap.Logger) (gateway.Gateway, error)

type Options struct {
	Out        io.Writer
	Err        io.Writer
	NewGateway GatewayFactory
}

type app struct {
	v          *viper.Viper
	out        io.Writer
	newGateway GatewayFactory
	log        *zap.Logger
}

// Execute runs trackerctl with os.Args.
func Execute() error {
	return NewRootCmd(Options{}).Execute()
}

func NewRootCmd(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.NewGateway == nil {
		opts.NewGateway = defaultGateway
	}
	a := &app{v: viper.New(), out: opts.Out, newGateway: opts.NewGateway, log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Inspect and update project tracking trees and results frameworks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (yaml)")
	pf.String("gateway-url", "http://localhost:8080", "persistence gateway base URL")
	pf.String("token", "", "bearer token")
	pf.String("jwt-secret", "", "sign a token locally with this secret when --token is empty")
	pf.String("user", "trackerctl", "subject of a locally signed token")
	pf.String("role", "user", "role of a locally signed token")
	pf.Duration("timeout", 30*time.Second, "overall command timeout")
	pf.Int("concurrency", 8, "parallel requests for fan-out commands")
	pf.String("weighting", "equal", "milestone weighting: equal or feature")
	pf.Bool("json", false, "print JSON instead of text")
	pf.BoolP("verbose", "v", false, "debug logging")
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.overviewCmd(),
		a.treeCmd(),
		a.toggleCmd(),
		a.blockCmd(),
		a.recomputeCmd(),
		a.rfCmd(),
	)
	return root
}

func (a *app) initConfig() error {
	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	a.v.SetEnvPrefix("TRACKHUB")
	// e.g. TRACKHUB_GATEWAY_URL for gateway-url
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	a.log = logger.NewCLILogger(a.v.GetBool("verbose"))
	return nil
}

func (a *app) settings() (Settings, error) {
	w := a.v.GetString("weighting")
	if w != "equal" && w != "feature" {
		return Settings{}, fmt.Errorf("--weighting must be equal or feature, got %q", w)
	}
	return Settings{
		GatewayURL:  a.v.GetString("gateway-url"),
		Token:       a.v.GetString("token"),
		JWTSecret:   a.v.GetString("jwt-secret"),
		User:        a.v.GetString("user"),
		Role:        a.v.GetString("role"),
		Timeout:     a.v.GetDuration("timeout"),
		Concurrency: a.v.GetInt("concurrency"),
		Weighting:   progress.ParseWeighting(w),
		JSON:        a.v.GetBool("json"),
		Verbose:     a.v.GetBool("verbose"),
	}, nil
}

// session resolves settings and the gateway, and bounds the command by the
// configured timeout.
func (a *app) session(cmd *cobra.Command) (context.Context, context.CancelFunc, Settings, gateway.Gateway, error) {
	s, err := a.settings()
	if err != nil {
		return nil, nil, s, nil, err
	}
	gw, err := a.newGateway(s, a.log)
	if err != nil {
		return nil, nil, s, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	return ctx, cancel, s, gw, nil
}

func defaultGateway(s Settings, log *zap.Logger) (gateway.Gateway, error) {
	token := s.Token
	if token == "" && s.JWTSecret != "" {
		t, err := util.GenerateJWT(s.User, s.Role, s.JWTSecret, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		token = t
	}
	return gateway.NewClient(s.GatewayURL, log,
		gateway.WithToken(token),
		gateway.WithHTTPClient(&http.Client{Timeout: s.Timeout}),
		gateway.WithTreeConcurrency(s.Concurrency),
	), nil
}
