package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"order-analyst/config"
	apperrors "order-analyst/errors"
	"order-analyst/table"

	"go.uber.org/zap"
)

const (
	EOM_TOKEN = "<|EOM|>"
)

// PythonExecutor runs code on a pool of remote Python executors speaking
// the "session|code<|EOM|>" protocol. A session sticks to the executor that
// first served it so interpreter state survives between calls.
type PythonExecutor struct {
	pool         *executorPool
	logger       *zap.Logger
	workspaceDir string
	dialTimeout  time.Duration
	ioTimeout    time.Duration
	maxConns     int

	sessionMu   sync.RWMutex
	sessionAddr map[string]string
	connPoolsMu sync.RWMutex
	connPools   map[string]*connPool
}

func NewPythonExecutor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*PythonExecutor, error) {
	pool, err := newExecutorPool(cfg.PythonExecutorAddresses, cfg.PythonExecutorCooldownSeconds)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrServiceUnavailable, err.Error())
	}
	workspace, err := filepath.Abs(cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace dir: %w", err)
	}
	p := &PythonExecutor{
		pool:         pool,
		logger:       logger,
		workspaceDir: workspace,
		dialTimeout:  cfg.PythonExecutorDialTimeoutSeconds,
		ioTimeout:    cfg.PythonExecutorIOTimeoutSeconds,
		maxConns:     cfg.PythonExecutorMaxConnections,
		sessionAddr:  make(map[string]string),
		connPools:    make(map[string]*connPool),
	}
	if err := p.ensureInitialConnectivity(ctx); err != nil {
		return nil, err
	}
	logger.Info("Python executor pool initialized", zap.Strings("addresses", pool.Addresses()))
	return p, nil
}

func (p *PythonExecutor) Language() string { return LanguagePython }

// Load writes t to the session workspace and reads it into `df`.
func (p *PythonExecutor) Load(ctx context.Context, session string, t *table.Table) error {
	dir := filepath.Join(p.workspaceDir, session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session workspace: %w", err)
	}
	path := filepath.Join(dir, "data.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write data file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}

	out, err := p.Execute(ctx, session, loadCode(path))
	if err != nil {
		return err
	}
	if IsErrorOutput(out) {
		return apperrors.WrapErrorf(apperrors.ErrPythonExecution, "load table: %s", out)
	}
	return nil
}

func loadCode(path string) string {
	return fmt.Sprintf(`import pandas as pd
import numpy as np
import warnings
warnings.filterwarnings('ignore')
pd.set_option('display.max_columns', None)
pd.set_option('display.width', 0)
df = pd.read_csv('%s')
print(f"Loaded {len(df)} rows")`, strings.ReplaceAll(path, "'", `\'`))
}

func (p *PythonExecutor) Execute(ctx context.Context, session, code string) (string, error) {
	tried := make(map[string]struct{})

	// Try the previously assigned executor first, if any.
	p.sessionMu.RLock()
	boundAddr, ok := p.sessionAddr[session]
	p.sessionMu.RUnlock()
	if ok {
		if result, err := p.callExecutor(ctx, boundAddr, code, session); err == nil {
			return result, nil
		}
		tried[boundAddr] = struct{}{}
		p.sessionMu.Lock()
		delete(p.sessionAddr, session)
		p.sessionMu.Unlock()
	}

	var lastErr error
	for attempts := 0; attempts < p.pool.Size(); attempts++ {
		addr, err := p.pool.Next()
		if err != nil {
			if lastErr != nil {
				return "", apperrors.WrapErrorf(apperrors.ErrServiceUnavailable, "no healthy python executors: %v", lastErr)
			}
			return "", apperrors.WrapError(apperrors.ErrServiceUnavailable, err.Error())
		}
		if _, seen := tried[addr]; seen {
			continue
		}
		tried[addr] = struct{}{}

		result, execErr := p.callExecutor(ctx, addr, code, session)
		if execErr == nil {
			p.sessionMu.Lock()
			p.sessionAddr[session] = addr
			p.sessionMu.Unlock()
			return result, nil
		}
		lastErr = execErr
	}
	if lastErr == nil {
		lastErr = errors.New("no executor attempted")
	}
	return "", apperrors.WrapErrorf(apperrors.ErrPythonExecution, "all python executors failed: %v", lastErr)
}

// Release forgets the session binding and removes its workspace.
func (p *PythonExecutor) Release(session string) {
	p.sessionMu.Lock()
	delete(p.sessionAddr, session)
	p.sessionMu.Unlock()
	if err := os.RemoveAll(filepath.Join(p.workspaceDir, session)); err != nil {
		p.logger.Warn("Failed to remove session workspace", zap.String("session_id", session), zap.Error(err))
	}
}

func (p *PythonExecutor) Close() {
	p.connPoolsMu.Lock()
	defer p.connPoolsMu.Unlock()
	for addr, pool := range p.connPools {
		pool.Close()
		delete(p.connPools, addr)
	}
}

func (p *PythonExecutor) getConnPool(address string) *connPool {
	p.connPoolsMu.RLock()
	pool := p.connPools[address]
	p.connPoolsMu.RUnlock()
	if pool != nil {
		return pool
	}

	p.connPoolsMu.Lock()
	defer p.connPoolsMu.Unlock()
	if pool = p.connPools[address]; pool == nil {
		pool = newConnPool(address, p.maxConns, func(ctx context.Context) (net.Conn, error) {
			d := &net.Dialer{Timeout: p.dialTimeout}
			return d.DialContext(ctx, "tcp", address)
		})
		p.connPools[address] = pool
	}
	return pool
}

func (p *PythonExecutor) ensureInitialConnectivity(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.pool.Addresses() {
		cp := p.getConnPool(addr)
		conn, err := cp.Get(ctx)
		if err != nil {
			p.pool.MarkFailure(addr)
			lastErr = err
			p.logger.Warn("Initial executor health check failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		cp.Put(conn)
		p.pool.MarkSuccess(addr)
		return nil
	}
	return apperrors.WrapErrorf(apperrors.ErrServiceUnavailable, "unable to reach any python executor: %v", lastErr)
}

func (p *PythonExecutor) callExecutor(ctx context.Context, addr, code, session string) (string, error) {
	cp := p.getConnPool(addr)
	conn, err := cp.Get(ctx)
	if err != nil {
		p.pool.MarkFailure(addr)
		p.logger.Warn("Failed to connect to python executor", zap.String("address", addr), zap.Error(err))
		return "", fmt.Errorf("dial python server %s: %w", addr, err)
	}

	result, execErr := p.roundTrip(conn, code, session)
	if execErr != nil {
		cp.Discard(conn)
		p.pool.MarkFailure(addr)
		p.logger.Warn("Python executor call failed", zap.String("address", addr), zap.Error(execErr))
		return "", fmt.Errorf("executor %s: %w", addr, execErr)
	}

	cp.Put(conn)
	p.pool.MarkSuccess(addr)
	p.logger.Debug("Python code executed", zap.String("address", addr), zap.String("session_id", session))
	return result, nil
}

func (p *PythonExecutor) roundTrip(conn net.Conn, code, session string) (string, error) {
	if p.ioTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(p.ioTimeout))
	}
	payload := session + "|" + code + EOM_TOKEN
	if _, err := conn.Write([]byte(payload)); err != nil {
		return "", fmt.Errorf("send code: %w", err)
	}

	reader := bufio.NewReader(conn)
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
			if s := b.String(); strings.Contains(s, EOM_TOKEN) {
				return strings.TrimSpace(strings.ReplaceAll(s, EOM_TOKEN, "")), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("executor closed connection before end of message")
			}
			return "", fmt.Errorf("read result: %w", err)
		}
	}
}
