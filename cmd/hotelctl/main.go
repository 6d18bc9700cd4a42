// Command hotelctl is a terminal client for the hotel server: browse hotels,
// manage favorites and book stays.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/apiclient"
	"github.com/staybook/hotel-server-go/internal/config"
	"github.com/staybook/hotel-server-go/internal/directory"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/favorites"
	"github.com/staybook/hotel-server-go/internal/identity"
	"github.com/staybook/hotel-server-go/internal/observability"
	"github.com/staybook/hotel-server-go/internal/relation"
	"github.com/staybook/hotel-server-go/internal/reservations"
)

const usage = `usage: hotelctl <command> [arguments]

hotels                         list hotels (* marks favorites)
hotel <id>                     show one hotel
rooms <hotelId>                list the rooms of a hotel
register -email E -password P -name N
login -email E -password P
logout
whoami
favorites                      list favorite hotels
fav add|remove|toggle <hotelId>
reserve -hotel ID [-room ID] -guests N -in YYYY-MM-DD -out YYYY-MM-DD
reservations                   list your reservations, newest first
cancel <reservationId>
watch                          print favorites on every change until interrupted
`

// app holds the client core shared by every command.
type app struct {
	out       io.Writer
	provider  *identity.HTTPProvider
	store     relation.Store
	favorites *favorites.Synchronizer
	directory *directory.Client
	book      *reservations.Book
}

func main() {
	observability.InitLogger(os.Stderr, "warn")

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(os.Stderr, cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, "hotelctl", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	a := newApp(ctx, cfg, os.Stdout)

	err = a.run(ctx, os.Args[1], os.Args[2:])
	a.close()
	if shutdownErr := shutdownTracing(context.Background()); shutdownErr != nil {
		log.Debug().Err(shutdownErr).Msg("failed to flush traces")
	}

	if err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "%s\n\n%s", usageErr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.ClientConfig, out io.Writer) *app {
	api := apiclient.New(cfg.ServerURL, cfg.BackendTimeout())

	provider := identity.NewHTTPProvider(api, identity.NewTokenFile(cfg.TokenFile))
	if err := provider.Restore(ctx); err != nil {
		// the token is kept; the next run tries again
		log.Warn().Err(err).Msg("could not restore session, continuing as guest")
	}

	store := relation.WithTracing(relation.NewHTTPStore(api, provider))

	return &app{
		out:       out,
		provider:  provider,
		store:     store,
		favorites: favorites.New(store, favorites.WithTimeout(cfg.BackendTimeout())),
		directory: directory.NewClient(cfg.DirectoryURL, cfg.CacheTTL()),
		book:      reservations.NewBook(store, provider).WithTimeout(cfg.BackendTimeout()),
	}
}

func (a *app) close() {
	a.favorites.Close()
}

type usageError string

func (e usageError) Error() string { return string(e) }

// describe renders an error for the terminal: the server's message for
// application errors, the full chain otherwise.
func describe(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return fmt.Sprintf("%s (%s)", appErr.Message, appErr.Code)
	}
	return err.Error()
}
