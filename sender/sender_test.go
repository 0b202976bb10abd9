package sender

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/diodeflow/envelope"
	"github.com/c360/diodeflow/errors"
)

// receiverSocket binds a loopback UDP socket and returns it with its address.
func receiverSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestSender(t *testing.T, target string) *Sender {
	t.Helper()
	s, err := New(target, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readDatagram(t *testing.T, conn *net.UDPConn) envelope.Envelope {
	t.Helper()
	buf := make([]byte, 65536)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	env, err := envelope.Decode(buf[:n])
	require.NoError(t, err)
	return env
}

func TestNew_Validation(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = New("not a host port")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSender_EmitDeliversEnvelope(t *testing.T) {
	recv := receiverSocket(t)
	s := newTestSender(t, recv.LocalAddr().String())

	before := time.Now()
	s.Emit([]byte(`{"reading":1}`))

	env := readDatagram(t, recv)
	assert.Equal(t, uint32(0), env.Seq)
	assert.Equal(t, []byte(`{"reading":1}`), env.Payload)
	assert.WithinDuration(t, before, env.SentAt(), time.Second)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Sent)
	assert.Zero(t, stats.SendErrors)
}

func TestSender_SequenceAdvancesPerEmit(t *testing.T) {
	recv := receiverSocket(t)
	s := newTestSender(t, recv.LocalAddr().String())

	for i := 0; i < 3; i++ {
		s.Emit([]byte(`{}`))
	}

	for want := uint32(0); want < 3; want++ {
		env := readDatagram(t, recv)
		assert.Equal(t, want, env.Seq)
	}
	assert.Equal(t, uint32(3), s.NextSeq())
}

func TestSender_OversizedPayloadConsumesSequence(t *testing.T) {
	recv := receiverSocket(t)
	s := newTestSender(t, recv.LocalAddr().String())

	// Too large for one datagram: logged, counted, never sent, but the
	// sequence number is still spent.
	s.Emit(make([]byte, envelope.MaxPayload+1))
	s.Emit([]byte(`{"reading":2}`))

	env := readDatagram(t, recv)
	assert.Equal(t, uint32(1), env.Seq)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.SendErrors)
	assert.Equal(t, uint32(2), stats.NextSeq)
}

func TestSender_EmitAfterClose(t *testing.T) {
	recv := receiverSocket(t)
	s := newTestSender(t, recv.LocalAddr().String())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Emit([]byte(`{}`))

	stats := s.Stats()
	assert.Zero(t, stats.Sent)
	assert.Equal(t, int64(1), stats.SendErrors)
	assert.Equal(t, uint32(1), stats.NextSeq)
}
