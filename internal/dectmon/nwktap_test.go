package dectmon

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNwkTap_DeliversLinesToClients(t *testing.T) {
	var tap, err = StartNwkTap(0)
	require.NoError(t, err)

	defer func() { _ = tap.Close() }()

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	tap.Serve(ctx)

	var conn, dialErr = net.Dial("tcp", tap.Addr().String())
	require.NoError(t, dialErr)

	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return tap.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	tap.Deliver("a", "pmid:20", DirFpToPt, []byte{0xde, 0xad})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	var line, readErr = bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, readErr)
	assert.Equal(t, "a ipui=pmid:20 dir=0 dead\n", line)
}

func TestNwkTap_DroppedClientIsRemoved(t *testing.T) {
	var tap, err = StartNwkTap(0)
	require.NoError(t, err)

	defer func() { _ = tap.Close() }()

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	tap.Serve(ctx)

	var conn, dialErr = net.Dial("tcp", tap.Addr().String())
	require.NoError(t, dialErr)
	require.Eventually(t, func() bool { return tap.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// The write path drops a closed client; it may take a delivery or
	// two before the OS reports the failure.
	require.Eventually(t, func() bool {
		tap.Deliver("a", "", DirFpToPt, []byte{0x01})

		return tap.clientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNwkFanout_DeliversToAllSinksInOrder(t *testing.T) {
	var first = &recordingNwkSink{}  //nolint:exhaustruct
	var second = &recordingNwkSink{} //nolint:exhaustruct

	var fan = NwkFanout{first, second}
	fan.Deliver("a", "ipui", DirPtToFp, []byte{1, 2, 3})

	require.Len(t, first.deliveries, 1)
	require.Len(t, second.deliveries, 1)
	assert.Equal(t, first.deliveries[0], second.deliveries[0])
}
