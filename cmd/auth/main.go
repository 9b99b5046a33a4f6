// Package main provides the Spotify authorization tool. It runs the OAuth
// code flow against a local callback and stores the refresh token tracksheet
// needs in a dotenv file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tracksheet/internal/infra/config"
	"github.com/osa030/tracksheet/internal/infra/logger"
	"github.com/osa030/tracksheet/internal/infra/spotify"
)

const refreshTokenKey = "SPOTIFY_REFRESH_TOKEN"

var (
	app        = kingpin.New("tracksheet-auth", "Obtain a Spotify refresh token for tracksheet")
	configPath = app.Flag("config", "Config file holding spotify.client_id and spotify.client_secret").Default("config/tracksheet.yaml").String()
	port       = app.Flag("port", "Callback server port").Default("8888").Int()
	envFile    = app.Flag("env-file", "Dotenv file the refresh token is written to").Default(".env").String()
	noSave     = app.Flag("no-save", "Print the refresh token instead of writing it").Bool()
	timeout    = app.Flag("timeout", "How long to wait for the browser callback").Default("5m").Duration()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "info"
	if *verbose {
		level = "debug"
	}
	closer, err := logger.Init(logger.Config{Level: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = run()
	if err != nil {
		zlog.Error().Msgf("authorization failed: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run() error {
	creds, err := config.LoadCredentials(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load spotify credentials")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
		spotifyauth.WithClientID(creds.ClientID),
		spotifyauth.WithClientSecret(creds.ClientSecret),
		spotifyauth.WithScopes(spotify.Scopes...),
	)
	cb := newCallback(auth)

	mux := http.NewServeMux()
	mux.Handle("/callback", cb)
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Warn().Msgf("failed to shut down callback server: %v", err)
		}
	}()

	fmt.Println("Open the following URL to authorize tracksheet:")
	fmt.Println()
	fmt.Println(auth.AuthURL(cb.state))
	fmt.Println()
	zlog.Info().Msgf("waiting for the authorization callback on port %d", *port)

	var token *oauth2.Token
	select {
	case token = <-cb.tokens:
	case err := <-serveErr:
		return errors.Wrap(err, "callback server failed")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no authorization received")
	}
	if token.RefreshToken == "" {
		return errors.New("spotify returned no refresh token")
	}

	if *noSave {
		fmt.Printf("%s=%s\n", refreshTokenKey, token.RefreshToken)
		return nil
	}
	if err := saveRefreshToken(*envFile, token.RefreshToken); err != nil {
		return err
	}
	fmt.Printf("Saved %s to %s\n", refreshTokenKey, *envFile)
	return nil
}

// tokenExchanger turns the callback request into a token.
type tokenExchanger interface {
	Token(ctx context.Context, state string, r *http.Request, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// callback handles the redirect from the Spotify authorization page and
// delivers the first successfully exchanged token.
type callback struct {
	exchanger tokenExchanger
	state     string
	tokens    chan *oauth2.Token
}

func newCallback(exchanger tokenExchanger) *callback {
	return &callback{
		exchanger: exchanger,
		state:     "tracksheet-" + uuid.NewString(),
		tokens:    make(chan *oauth2.Token, 1),
	}
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := c.exchanger.Token(r.Context(), c.state, r)
	if err != nil {
		zlog.Warn().Msgf("authorization callback rejected: %v", err)
		http.Error(w, "Authorization failed", http.StatusForbidden)
		return
	}

	select {
	case c.tokens <- token:
	default:
		zlog.Debug().Msg("ignoring repeated authorization callback")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>tracksheet</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>tracksheet is authorized</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>
`)
}

// saveRefreshToken sets the refresh token in the dotenv file at path, keeping
// every other entry.
func saveRefreshToken(path, token string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}
		env = existing
	}
	env[refreshTokenKey] = token

	if err := godotenv.Write(env, path); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
