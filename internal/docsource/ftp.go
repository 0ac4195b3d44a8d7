package docsource

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ftpTarget is a parsed ftp:// handle.
type ftpTarget struct {
	host string
	path string
	user string
	pass string
}

// parseFTPURL extracts host (with port), path, and credentials from an FTP
// URL. Anonymous login is used when the URL carries no userinfo.
func parseFTPURL(rawURL string) (*ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "docsource: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return nil, eris.Errorf("docsource: expected ftp scheme, got %q", u.Scheme)
	}

	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return nil, eris.New("docsource: empty path in ftp url")
	}

	target := &ftpTarget{host: host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if u.User != nil {
		target.user = u.User.Username()
		target.pass, _ = u.User.Password()
	}
	return target, nil
}

// fetchFTP connects to the FTP server, logs in, and retrieves the target file.
func fetchFTP(ctx context.Context, target *ftpTarget, timeout time.Duration) ([]byte, error) {
	zap.L().Debug("docsource: ftp connect",
		zap.String("host", target.host),
		zap.String("path", target.path))

	conn, err := ftp.Dial(target.host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "docsource: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(target.user, target.pass); err != nil {
		return nil, eris.Wrap(err, "docsource: ftp login")
	}

	resp, err := conn.Retr(target.path)
	if err != nil {
		return nil, eris.Wrap(err, "docsource: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(err, "docsource: ftp read")
	}
	return data, nil
}
