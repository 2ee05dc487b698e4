package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const clickhouseImage = "clickhouse/clickhouse-server:24.1-alpine"

var shared struct {
	once      sync.Once
	container testcontainers.Container
	conn      *Conn
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if shared.conn != nil {
		shared.conn.Close()
	}
	if shared.container != nil {
		_ = shared.container.Terminate(context.Background())
	}
	os.Exit(code)
}

// setupTestDB returns a connection to a migrated trajectory database with
// timestep_records emptied. One container backs the whole package.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	shared.once.Do(func() {
		shared.container, shared.conn, shared.err = startClickhouse(ctx)
	})
	require.NoError(t, shared.err, "failed to start clickhouse")

	reset := func() {
		require.NoError(t, shared.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS timestep_records"))
	}
	reset()
	return shared.conn, reset
}

func startClickhouse(ctx context.Context) (testcontainers.Container, *Conn, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        clickhouseImage,
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"CLICKHOUSE_DB":       "meshnet",
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Application: Ready for connections").
					WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, nil, err
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		return container, nil, err
	}

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s:%s/meshnet", host, port.Port()))
	if err != nil {
		return container, nil, err
	}
	if err := applySchema(ctx, conn); err != nil {
		return container, conn, err
	}
	return container, conn, nil
}

// applySchema reads the schema from disk; the migrations package imports
// this one and cannot be used here.
func applySchema(ctx context.Context, conn *Conn) error {
	files, err := filepath.Glob(filepath.Join("..", "migrations", "clickhouse", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(dropComments(string(content)), ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(f), err)
			}
		}
	}
	return nil
}

func dropComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !strings.HasPrefix(strings.TrimSpace(l), "--") {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
