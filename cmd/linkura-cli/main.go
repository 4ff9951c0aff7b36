package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chocolzs/linkura-go/internal/client"
	"github.com/chocolzs/linkura-go/internal/config"
	"github.com/chocolzs/linkura-go/internal/live"
	"github.com/chocolzs/linkura-go/internal/logging"
	"github.com/chocolzs/linkura-go/internal/session"
	"github.com/chocolzs/linkura-go/internal/transport"
)

const (
	exitOK      = 0
	exitAuth    = 2
	exitFailure = 3
)

const usage = `usage: linkura-cli <command> [flags]

commands:
  login     link an account or verify the stored session
  archives  list recent archives
  archive   fetch one archive's data
  live      capture a live session
  version   report the server app version
  config    write a starter config file
`

func main() {
	logging.ConfigureRuntime()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "login":
		err = cmdLogin(ctx, args[1:])
	case "archives":
		err = cmdArchives(ctx, args[1:])
	case "archive":
		err = cmdArchive(ctx, args[1:])
	case "live":
		err = cmdLive(ctx, args[1:])
	case "version":
		err = cmdVersion(ctx, args[1:])
	case "config":
		err = cmdConfig(args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "linkura-cli: unknown command %q\n%s", args[0], usage)
		return exitFailure
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "linkura-cli: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps failures onto the documented exit codes: 2 for
// authentication problems, 3 for everything else.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var opErr *client.OperationError
	if errors.As(err, &opErr) && opErr.Kind == client.KindAuth {
		return exitAuth
	}
	if errors.Is(err, session.ErrInvalidCredentials) ||
		errors.Is(err, session.ErrReauthenticationRequired) {
		return exitAuth
	}
	return exitFailure
}

// app bundles the wired client stack for one invocation.
type app struct {
	cfg      config.AppConfig
	store    session.Store
	sessions *session.Manager
	orch     *client.Orchestrator
}

func commonFlags(fs *flag.FlagSet) (configPath, playerID, deviceID *string) {
	configPath = fs.String("config", "", "path to a config file (TOML)")
	playerID = fs.String("player-id", "", "player id override")
	deviceID = fs.String("device-id", "", "device specific id override")
	return
}

func buildApp(configPath, playerID, deviceID string) (*app, error) {
	cfg := config.DefaultAppConfig()
	if configPath != "" {
		loaded, err := config.LoadAppConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if path, err := defaultProfilePath(); err == nil {
		if err := applyProfile(&cfg, path); err != nil {
			return nil, err
		}
	}

	carrier, err := transport.NewHTTPCarrier(config.HTTPConfig(cfg.API))
	if err != nil {
		return nil, err
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath, err = session.DefaultStorePath()
		if err != nil {
			return nil, fmt.Errorf("resolve token store path: %w", err)
		}
	}
	store := session.NewFileStore(storePath)

	cred := session.Credential{PlayerID: playerID, DeviceSpecificID: deviceID}
	sessions := session.NewManager(session.Config{ClientVersion: cfg.API.ClientVersion}, carrier, store, cred)
	orch := client.NewOrchestrator(client.Config{}, sessions, carrier)

	return &app{cfg: cfg, store: store, sessions: sessions, orch: orch}, nil
}

func cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	configPath, playerID, deviceID := commonFlags(fs)
	password := fs.String("password", "", "account password (one-shot link, never stored)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(*configPath, *playerID, *deviceID)
	if err != nil {
		return err
	}

	if *password != "" {
		cred, err := a.sessions.Connect(ctx, *playerID, *password)
		if err != nil {
			return err
		}
		fmt.Printf("account linked, device id %s\n", cred.DeviceSpecificID)
	}

	sess, err := a.sessions.EnsureAuthenticated(ctx)
	if err != nil {
		return err
	}
	name := sess.PlayerName
	if name == "" {
		name = sess.PlayerID
	}
	fmt.Printf("logged in as %s\n", name)
	return nil
}

func cmdArchives(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	configPath, playerID, deviceID := commonFlags(fs)
	limit := fs.Uint("limit", 4, "number of archives to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(*configPath, *playerID, *deviceID)
	if err != nil {
		return err
	}
	res, err := a.orch.Execute(ctx, client.ArchiveList(uint32(*limit)))
	if err != nil {
		return err
	}
	printRecords(res)
	return nil
}

func cmdArchive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configPath, playerID, deviceID := commonFlags(fs)
	fes := fs.Bool("fes", false, "fetch a fes archive instead of a with-live archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("archive: exactly one archive id required")
	}
	archivesID := fs.Arg(0)

	a, err := buildApp(*configPath, *playerID, *deviceID)
	if err != nil {
		return err
	}
	op := client.WithArchiveData(archivesID)
	if *fes {
		op = client.FesArchiveData(archivesID)
	}
	res, err := a.orch.Execute(ctx, op)
	if err != nil {
		return err
	}
	printRecords(res)
	return nil
}

func cmdLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	configPath, playerID, deviceID := commonFlags(fs)
	fes := fs.Bool("fes", false, "join a fes live instead of a with-live")
	member := fs.Uint("member", 1, "member id used when joining the room")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("live: exactly one live id required")
	}
	liveID := fs.Arg(0)

	a, err := buildApp(*configPath, *playerID, *deviceID)
	if err != nil {
		return err
	}

	enter := client.WithLiveEnter(liveID)
	tokenOp := client.WithLiveConnectToken(liveID)
	if *fes {
		enter = client.FesLiveEnter(liveID)
		tokenOp = client.FesLiveConnectToken(liveID)
	}

	if _, err := a.orch.Execute(ctx, enter); err != nil {
		return err
	}
	res, err := a.orch.Execute(ctx, tokenOp)
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return errors.New("live: server returned no connect token")
	}
	token := string(res.Records[0])

	info, err := live.InfoFromToken(token, uint16(*member))
	if err != nil {
		return err
	}
	capture, err := live.NewClient(info, config.CaptureConfig(a.cfg.Live))
	if err != nil {
		return err
	}
	return capture.Capture(ctx)
}

func cmdVersion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	configPath, playerID, deviceID := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(*configPath, *playerID, *deviceID)
	if err != nil {
		return err
	}
	res, err := a.orch.Execute(ctx, client.AppVersion())
	if err != nil {
		return err
	}
	printRecords(res)
	return nil
}

func cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	path := fs.String("write", "linkura.toml", "where to write the starter config")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteTemplate(*path, *force); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *path)
	return nil
}

func printRecords(res *client.Result) {
	for _, rec := range res.Records {
		fmt.Println(string(rec))
	}
}
