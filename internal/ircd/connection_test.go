package ircd

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxcat/ircd/internal/config"
)

func newTestConnection(t *testing.T, reg *Registry) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Default()
	cfg.PingTime = time.Minute
	cfg.DeadTime = time.Minute

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	c := NewConnection(server, reg, cfg, log.WithField("test", true))
	return c, client
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func TestConnectionRegistersAndReceivesWelcome(t *testing.T) {
	reg := newTestRegistry()
	c, client := newTestConnection(t, reg)

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	_, err := client.Write([]byte("NICK alice\r\nUSER alice 0 * :Alice Example\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(client)
	welcome := readLine(t, r)
	assert.Contains(t, welcome, "001")
	assert.Contains(t, welcome, "alice")

	_, _, ok := reg.LookupUser("alice")
	assert.True(t, ok)

	_, err = client.Write([]byte("QUIT :bye\r\n"))
	require.NoError(t, err)
	<-done

	_, _, ok = reg.LookupUser("alice")
	assert.False(t, ok)
}

func TestConnectionRejectsUseBeforeRegistration(t *testing.T) {
	reg := newTestRegistry()
	c, client := newTestConnection(t, reg)

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	_, err := client.Write([]byte("JOIN #chat\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(client)
	line := readLine(t, r)
	assert.Contains(t, line, "451")

	require.NoError(t, client.Close())
	<-done
}
