package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// loopbackTimeout bounds the wait for the browser redirect before falling
// back to a pasted code.
const loopbackTimeout = 120 * time.Second

// Session carries the OAuth state for one run:
// - client credentials at <configDir>/client_secret.json
// - token cache at <configDir>/token.json
// The token is refreshed when it expires and every refreshed token is
// written back to the cache.
type Session struct {
	cfg       *oauth2.Config
	tokenPath string
	source    *persistingSource
	logger    *slog.Logger
}

// OpenSession loads the cached token or, if there is none, runs the
// installed-app authorization flow on the terminal.
func OpenSession(ctx context.Context, configDir string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	credPath := filepath.Join(configDir, "client_secret.json")
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		tokenPath: filepath.Join(configDir, "token.json"),
		logger:    logger,
	}
	tok, err := readToken(s.tokenPath)
	if err != nil || (!tok.Valid() && tok.RefreshToken == "") {
		logger.Info("no usable cached token, starting authorization")
		if tok, err = s.authorize(ctx); err != nil {
			return nil, err
		}
	}
	s.use(ctx, tok)
	return s, nil
}

// Connect returns the Gmail API for this session. The cached token is
// checked with a profile lookup; a rejected token is discarded and the
// authorization flow runs once more.
func (s *Session) Connect(ctx context.Context) (API, error) {
	svc, err := s.service(ctx)
	if err == nil {
		_, err = svc.Users.GetProfile("me").Context(ctx).Do()
	}
	if err == nil {
		return NewAPI(svc), nil
	}

	s.logger.Warn("cached token rejected, re-authorizing", "err", err)
	os.Remove(s.tokenPath)
	tok, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	s.use(ctx, tok)
	if svc, err = s.service(ctx); err != nil {
		return nil, err
	}
	return NewAPI(svc), nil
}

func (s *Session) use(ctx context.Context, tok *oauth2.Token) {
	s.source = &persistingSource{
		base:   s.cfg.TokenSource(ctx, tok),
		path:   s.tokenPath,
		last:   tok,
		logger: s.logger,
	}
}

func (s *Session) service(ctx context.Context) (*gmailv1.Service, error) {
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, s.source)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func (s *Session) authorize(ctx context.Context) (*oauth2.Token, error) {
	tok, err := tokenFromWeb(ctx, s.cfg, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	if err := saveToken(s.tokenPath, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// persistingSource writes every new token it hands out to path.
type persistingSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil || p.last.AccessToken != tok.AccessToken {
		if err := saveToken(p.path, tok); err != nil {
			p.logger.Warn("persist refreshed token", "path", p.path, "err", err)
		} else {
			p.logger.Debug("persisted refreshed token", "expiry", tok.Expiry)
		}
		p.last = tok
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tokenFromWeb runs a loopback HTTP server to capture the auth code. If the
// listener cannot be opened or the redirect does not arrive in time, it
// falls back to reading a pasted code (or full redirect URL) from in.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	code, err := codeFromLoopback(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	if code == "" {
		authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintln(out, "Open this URL in your browser to authorize invoiz:")
		fmt.Fprintln(out, authURL)
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
		fmt.Fprint(out, "> ")

		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 1024), 1024*1024)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("read auth code: %w", err)
			}
			return nil, errors.New("empty authorization code")
		}
		if code, err = codeFromInput(sc.Text()); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(out, "Exchanging code for token…")
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	fmt.Fprintln(out, "Authentication successful.")
	return tok, nil
}

// codeFromLoopback returns "" when the caller should fall back to manual
// paste. cfg.RedirectURL is left pointing at the loopback address only when
// a code was captured, since the exchange must use the same redirect.
func codeFromLoopback(ctx context.Context, cfg *oauth2.Config, out io.Writer) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil
	}
	redirect := fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)
	oldRedirect := cfg.RedirectURL
	cfg.RedirectURL = redirect

	codes := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{ReadHeaderTimeout: 5 * time.Second, Handler: mux}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	fmt.Fprintln(out, "A browser window will open. If it does not, copy this URL:")
	fmt.Fprintln(out, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	fmt.Fprintf(out, "Waiting for redirect on %s …\n", redirect)

	select {
	case <-ctx.Done():
		cfg.RedirectURL = oldRedirect
		return "", ctx.Err()
	case code := <-codes:
		return strings.TrimSpace(code), nil
	case <-time.After(loopbackTimeout):
		cfg.RedirectURL = oldRedirect
		fmt.Fprintln(out, "Timeout waiting for redirect; falling back to manual paste.")
		return "", nil
	}
}

// codeFromInput accepts either a bare authorization code or the full
// redirect URL the browser landed on.
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := strings.TrimSpace(u.Query().Get("code"))
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
