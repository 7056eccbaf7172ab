package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/source"
	"sync"
	"sync/atomic"
	"time"

	goftp "github.com/jlaffaye/ftp"
	"go.uber.org/zap"
)

const defaultPort = 21

type Connector struct {
	dialTimeout time.Duration
}

func NewConnector(dialTimeout time.Duration) *Connector {
	return &Connector{dialTimeout: dialTimeout}
}

func (c *Connector) Connect(ctx context.Context, creds source.Credentials) (source.Session, error) {
	port := creds.Port
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(creds.Host, strconv.Itoa(port))

	conn, err := c.dial(ctx, addr, creds)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("ftp session opened",
		zap.String("addr", addr),
		zap.String("user", creds.Username),
		zap.Bool("tls", creds.TLS))

	return &Session{
		conn: conn,
		addr: addr,
		redial: func(ctx context.Context) (serverConn, error) {
			return c.dial(ctx, addr, creds)
		},
	}, nil
}

// dial opens and logs in a control connection. The first connection made
// through the dial func is the control connection; later ones carry data.
func (c *Connector) dial(ctx context.Context, addr string, creds source.Credentials) (serverConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		ctrlOnce sync.Once
		ctrl     net.Conn
	)
	dialer := &net.Dialer{Timeout: c.dialTimeout}

	opts := []goftp.DialOption{
		goftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			conn, err := dialer.Dial(network, address)
			if err == nil {
				ctrlOnce.Do(func() { ctrl = conn })
			}
			return conn, err
		}),
	}
	if creds.TLS {
		opts = append(opts, goftp.DialWithExplicitTLS(&tls.Config{ServerName: creds.Host}))
	}

	conn, err := goftp.Dial(addr, opts...)
	if err != nil {
		return nil, &source.ConnectionError{Msg: "could not reach the FTP server", Err: err}
	}

	if err := conn.Login(creds.Username, creds.Password); err != nil {
		_ = conn.Quit()
		return nil, &source.ConnectionError{Msg: "FTP login failed, check the username and password", Err: err}
	}

	return &libConn{ServerConn: conn, ctrl: ctrl}, nil
}

// dataStream is the body of a RETR.
type dataStream interface {
	io.ReadCloser
	SetDeadline(t time.Time) error
}

type serverConn interface {
	List(path string) ([]*goftp.Entry, error)
	Retr(path string) (dataStream, error)
	NoOp() error
	Quit() error
	// Abort makes pending and future control replies fail at once.
	Abort()
}

type libConn struct {
	*goftp.ServerConn
	ctrl net.Conn
}

func (c *libConn) Retr(p string) (dataStream, error) {
	resp, err := c.ServerConn.Retr(p)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *libConn) Abort() {
	if c.ctrl != nil {
		_ = c.ctrl.SetDeadline(time.Now())
	}
}

// Session wraps one FTP control connection. Commands are serialized and a
// fetch keeps the connection busy until its reader is closed. A fetch that
// was cut off leaves the control channel out of sync, so the next command
// runs on a fresh connection.
type Session struct {
	mu     sync.Mutex
	conn   serverConn
	redial func(ctx context.Context) (serverConn, error)
	addr   string
	closed bool
	stale  bool
}

// ready must be called with s.mu held.
func (s *Session) ready(ctx context.Context) error {
	if s.closed {
		return &source.ConnectionError{Msg: "FTP session is closed"}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.stale {
		return nil
	}

	_ = s.conn.Quit()
	if s.redial == nil {
		s.closed = true
		return &source.ConnectionError{Msg: "FTP session was reset by an aborted transfer"}
	}

	conn, err := s.redial(ctx)
	if err != nil {
		s.closed = true
		return err
	}

	logger.Log.Info("ftp session reconnected",
		zap.String("addr", s.addr))

	s.conn = conn
	s.stale = false
	return nil
}

func (s *Session) List(ctx context.Context, dir string) ([]model.Entry, error) {
	dir = source.Clean(dir)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	list, err := s.conn.List(dir)
	if err != nil {
		if s.connectionLost(err) {
			return nil, &source.ConnectionError{Msg: "lost connection to the FTP server", Err: err}
		}
		return nil, &source.PathError{Path: dir, Err: err}
	}

	entries := make([]model.Entry, 0, len(list))
	for _, e := range list {
		if e.Name == "." || e.Name == ".." {
			continue
		}

		entry := model.Entry{
			Name:    e.Name,
			Path:    path.Join(dir, e.Name),
			IsDir:   e.Type == goftp.EntryTypeFolder,
			ModTime: e.Time,
		}
		if !entry.IsDir {
			entry.Size = int64(e.Size)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *Session) Fetch(ctx context.Context, file string) (io.ReadCloser, error) {
	file = source.Clean(file)

	s.mu.Lock()
	if err := s.ready(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	resp, err := s.conn.Retr(file)
	if err != nil {
		dead := s.connectionLost(err)
		s.mu.Unlock()
		if dead {
			return nil, &source.ConnectionError{Msg: "lost connection to the FTP server", Err: err}
		}
		return nil, &source.TransferError{Path: file, Err: err}
	}

	stream := &retrStream{dataStream: resp, sess: s}
	return source.ContextReader(ctx, stream, s.mu.Unlock), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	logger.Log.Info("ftp session closed",
		zap.String("addr", s.addr))

	return s.conn.Quit()
}

// connectionLost reports whether err means the control connection is gone.
// A protocol reply such as 550 proves the server is still talking to us.
func (s *Session) connectionLost(err error) bool {
	if _, ok := errors.AsType[*textproto.Error](err); ok {
		return false
	}

	return s.conn.NoOp() != nil
}

// retrStream is read and closed while the session lock is held.
type retrStream struct {
	dataStream
	sess    *Session
	aborted atomic.Bool
}

func (r *retrStream) SetDeadline(t time.Time) error {
	r.aborted.Store(true)
	return r.dataStream.SetDeadline(t)
}

func (r *retrStream) Close() error {
	if r.aborted.Load() {
		// The transfer-complete reply may never come.
		r.sess.conn.Abort()
		r.sess.stale = true
	}
	return r.dataStream.Close()
}
