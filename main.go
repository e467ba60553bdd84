package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"aplgui/internal/config"
	"aplgui/internal/consumer"
	"aplgui/internal/discovery"
	"aplgui/internal/events"
	"aplgui/internal/logging"
)

// dotenvLoad is swapped out in tests
var dotenvLoad = godotenv.Load

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
)

func main() {
	// A missing .env is normal.
	_ = dotenvLoad()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:           "aplgui",
		Short:         "Control panel backend for the APL agent workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "settings file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().String("log-format", "text", "text or json")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log_format", root.PersistentFlags().Lookup("log-format"))

	serve := newServeCmd(v, &configFile)
	root.AddCommand(serve, newWatchCmd(v, &configFile), newVersionCmd())
	// Running bare aplgui starts the server.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

// flagKeys maps command-line flags to settings keys
var flagKeys = map[string]string{
	"host":        "host",
	"port":        "port",
	"project":     "project_root",
	"plugin-root": "plugin_root",
	"mdns":        "mdns.enabled",
}

// loadConfig binds the flags of the running command, which may share names
// with flags of other commands, and decodes the settings.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*config.Config, error) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	if err := config.ReadFile(v, configFile); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

func newServeCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var showQR bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch the project and serve the HTTP API and event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd.Flags(), *configFile)
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := NewApp(cfg, logger)
			if err := app.Startup(ctx); err != nil {
				app.Shutdown(context.Background())
				return err
			}

			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				app.Shutdown(context.Background())
				return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
			}

			url := "http://" + ln.Addr().String()
			printBanner(cfg, url)
			if showQR {
				if qr, err := discovery.QRCode(url); err == nil {
					fmt.Println(qr)
				} else {
					logger.Warn("render QR code", "error", err)
				}
			}

			errCh := make(chan error, 1)
			go func() { errCh <- app.Serve(ln) }()

			select {
			case err := <-errCh:
				app.Shutdown(context.Background())
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			app.Shutdown(shutdownCtx)
			return <-errCh
		},
	}

	f := cmd.Flags()
	f.String("host", "localhost", "listen host")
	f.Int("port", 3001, "listen port")
	f.String("project", "", "project root (default: $APL_PROJECT_ROOT or the working directory)")
	f.String("plugin-root", "", "APL plugin directory holding master-config.json and patterns/")
	f.Bool("mdns", false, "advertise the server on the local network")
	f.BoolVar(&showQR, "qr", false, "print a QR code of the server URL")
	return cmd
}

func printBanner(cfg *config.Config, url string) {
	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value
	}
	fmt.Println(strings.Join([]string{
		titleStyle.Render("APL GUI server " + config.Version),
		row("URL", url),
		row("WebSocket", strings.Replace(url, "http", "ws", 1)+"/ws"),
		row("Project", cfg.ProjectRoot),
		row("Plugin", cfg.PluginRoot),
	}, "\n"))
}

func newWatchCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running server's event stream in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd.Flags(), *configFile)
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if url == "" {
				url = fmt.Sprintf("ws://%s/ws", cfg.Addr())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := consumer.NewStore()
			p := &printer{store: store}
			client := consumer.NewClient(store, consumer.Options{
				URL:     url,
				Logger:  logger,
				OnEvent: p.print,
			})
			fmt.Println(titleStyle.Render("Watching " + url))

			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "websocket URL (default: ws://<host>:<port>/ws)")
	cmd.Flags().String("host", "localhost", "server host")
	cmd.Flags().Int("port", 3001, "server port")
	return cmd
}

// printer shows agent output verbatim and every new activity line
type printer struct {
	store  *consumer.Store
	lastID string
}

func (p *printer) print(ev events.Event, at time.Time) {
	if out, ok := ev.(events.AplOutput); ok {
		if out.Stream == events.Stderr {
			fmt.Fprint(os.Stderr, out.Data)
		} else {
			fmt.Print(out.Data)
		}
		return
	}

	snap := p.store.Snapshot()
	if len(snap.Activity) == 0 || snap.Activity[0].ID == p.lastID {
		return
	}
	line := snap.Activity[0]
	p.lastID = line.ID

	stamp := labelStyle.Render(line.Timestamp.Local().Format("15:04:05"))
	switch line.Kind {
	case consumer.ActivityError:
		fmt.Println(stamp, errorStyle.Render(line.Message))
	case consumer.ActivityPhase:
		fmt.Println(stamp, phaseStyle.Render(line.Message))
	default:
		fmt.Println(stamp, line.Message)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("aplgui " + config.Version)
		},
	}
}
