package dectmon

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	scans    []string
	confirms []PARI
}

func (d *fakeDriver) RequestScan(cluster string) error {
	d.scans = append(d.scans, cluster)

	return nil
}

func (d *fakeDriver) RequestConfirm(cluster string, pari PARI) error {
	d.confirms = append(d.confirms, pari)

	return nil
}

func newTestCluster(t *testing.T) (*MonitorState, *ClusterHandle, *SimEventLoop, *fakeDriver) {
	t.Helper()

	var sink, err = NewTraceSink(&discardWriter{}, DumpOpts{MAC: true, DLC: true, NWK: true}, "")
	require.NoError(t, err)

	var state = NewMonitorState(DefaultAuthPIN, sink, nil)
	var handle, openErr = state.OpenCluster("a", "")
	require.NoError(t, openErr)

	var loop = NewSimEventLoop(time.Unix(0, 0))
	var driver = &fakeDriver{} //nolint:exhaustruct
	handle.Bind(loop, driver)

	return state, handle, loop, driver
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestScenario1_ScanAndLock(t *testing.T) {
	var state, handle, _, _ = newTestCluster(t)

	var pari = PARI{EMC: 0x1234, FPN: 0x56789}

	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{Pari: &pari})) //nolint:exhaustruct
	assert.False(t, handle.Locked())

	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{HasFpc: true, Fpc: 0x00f0})) //nolint:exhaustruct

	assert.True(t, handle.Locked())
	assert.Equal(t, 1, state.LockedCount())
	assert.Equal(t, pari, handle.PARI())
}

func TestClusterHandle_RPNCarriedAndClearedOnUnlock(t *testing.T) {
	// SPEC_FULL 11: RFPI = PARI + RPN, for FP systems with more than
	// one radio head; optional and nil when the indication omits it.
	var _, handle, _, _ = newTestCluster(t)

	var pari = PARI{EMC: 0x1234, FPN: 0x56789}
	var rpn = uint8(3)

	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{Pari: &pari, RPN: &rpn})) //nolint:exhaustruct
	require.NotNil(t, handle.RPN())
	assert.Equal(t, rpn, *handle.RPN())

	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{HasFpc: true, Fpc: 0x00f0})) //nolint:exhaustruct
	assert.True(t, handle.Locked())
	require.NotNil(t, handle.RPN(), "RPN is retained across the lock transition")

	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{})) //nolint:exhaustruct
	assert.False(t, handle.Locked())
	assert.Nil(t, handle.RPN(), "RPN is cleared along with PARI on unlock")
}

func TestLockLifecycleTracesAreUngated(t *testing.T) {
	// Scenario 1's trace lines must appear on a default run: lock
	// lifecycle is Info-level output, not per-burst MAC dump chatter,
	// so it prints even with --dump-mac=no (the default).
	var buf bytes.Buffer

	var sink, err = NewTraceSink(&buf, DefaultDumpOpts(), "")
	require.NoError(t, err)

	var state = NewMonitorState(DefaultAuthPIN, sink, nil)
	var handle, openErr = state.OpenCluster("a", "")
	require.NoError(t, openErr)

	var loop = NewSimEventLoop(time.Unix(0, 0))
	handle.Bind(loop, &fakeDriver{}) //nolint:exhaustruct

	var pari = PARI{EMC: 0x1234, FPN: 0x56789}
	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{Pari: &pari}))               //nolint:exhaustruct
	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{HasFpc: true, Fpc: 0x00f0})) //nolint:exhaustruct

	assert.Contains(t, buf.String(), "EMC: 1234 FPN: 56789")
	assert.Contains(t, buf.String(), "locked (1)")

	buf.Reset()
	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{})) //nolint:exhaustruct
	assert.Contains(t, buf.String(), "unlocked (0)")
}

func TestLockTimeoutTraceIsUngated(t *testing.T) {
	var buf bytes.Buffer

	var sink, err = NewTraceSink(&buf, DefaultDumpOpts(), "")
	require.NoError(t, err)

	var state = NewMonitorState(DefaultAuthPIN, sink, nil)
	var handle, openErr = state.OpenCluster("a", "")
	require.NoError(t, openErr)

	var loop = NewSimEventLoop(time.Unix(0, 0))
	handle.Bind(loop, &fakeDriver{}) //nolint:exhaustruct

	var pari = PARI{EMC: 0x1234, FPN: 0x56789}
	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{Pari: &pari})) //nolint:exhaustruct

	loop.Advance(LockTimeout + time.Millisecond)

	assert.Contains(t, buf.String(), "timeout, lock failed")
}

func TestScenario2_LockTimeout(t *testing.T) {
	var state, handle, loop, driver = newTestCluster(t)

	// The cluster starts out scanning, as with --scan.
	require.NoError(t, handle.Scan())

	var pari = PARI{EMC: 0x1234, FPN: 0x56789}

	require.NoError(t, handle.HandleMacMeInfo(MacMeInfo{Pari: &pari})) //nolint:exhaustruct

	// No capabilities indication arrives before the 15s bound.
	loop.Advance(LockTimeout + time.Millisecond)

	assert.False(t, handle.Locked())
	assert.Equal(t, 0, state.LockedCount())
	assert.Equal(t, PARI{}, handle.PARI())
	assert.GreaterOrEqual(t, len(driver.scans), 2, "handle re-issues scan after timeout")
}

func TestClusterHandle_PARIUniqueAcrossHandles(t *testing.T) {
	var sink, err = NewTraceSink(&discardWriter{}, DumpOpts{}, "")
	require.NoError(t, err)

	var state = NewMonitorState(DefaultAuthPIN, sink, nil)

	var a, errA = state.OpenCluster("a", "")
	require.NoError(t, errA)

	var b, errB = state.OpenCluster("b", "")
	require.NoError(t, errB)

	var loop = NewSimEventLoop(time.Unix(0, 0))
	a.Bind(loop, &fakeDriver{}) //nolint:exhaustruct
	b.Bind(loop, &fakeDriver{}) //nolint:exhaustruct

	var pari = PARI{EMC: 1, FPN: 2}

	require.NoError(t, a.HandleMacMeInfo(MacMeInfo{Pari: &pari}))          //nolint:exhaustruct
	require.NoError(t, a.HandleMacMeInfo(MacMeInfo{HasFpc: true, Fpc: 1})) //nolint:exhaustruct

	// b sights the same PARI while a already owns it: ignored, not an
	// error, and b never adopts it (invariant 1 of section 3).
	require.NoError(t, b.HandleMacMeInfo(MacMeInfo{Pari: &pari})) //nolint:exhaustruct

	assert.True(t, a.Locked())
	assert.False(t, b.Locked())
	assert.Equal(t, PARI{}, b.PARI())
}

func TestMonitorState_DuplicateClusterNameRejected(t *testing.T) {
	var sink, err = NewTraceSink(&discardWriter{}, DumpOpts{}, "")
	require.NoError(t, err)

	var state = NewMonitorState(DefaultAuthPIN, sink, nil)

	var _, openErr1 = state.OpenCluster("a", "")
	require.NoError(t, openErr1)

	var _, openErr2 = state.OpenCluster("a", "")
	require.Error(t, openErr2)
}
