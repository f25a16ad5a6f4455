package dectmon

/*------------------------------------------------------------------
 *
 * Purpose:	Portable Part (PT) state, including the MM procedure
 *		tagged union from design note 9.A.4 ("Procedure field
 *		on PT is naturally a tagged union... making illegal
 *		states unrepresentable").
 *
 *------------------------------------------------------------------*/

// MmProcedureKind is the in-flight MM procedure a PT is running, or
// MmNone. Only one procedure may be active per PT at a time (4.F).
type MmProcedureKind int

const (
	MmNone MmProcedureKind = iota
	MmKeyAllocation
	MmAuthentication
	MmCiphering
)

func (k MmProcedureKind) String() string {
	switch k {
	case MmNone:
		return "none"
	case MmKeyAllocation:
		return "key-allocation"
	case MmAuthentication:
		return "authentication"
	case MmCiphering:
		return "ciphering"
	default:
		return "unknown"
	}
}

// MmProcedure carries exactly the auth material relevant to whichever
// procedure is in flight. Fields outside the active Kind are
// meaningless and must not be read; this is the tagged-union
// discipline from the design notes, expressed with a Kind discriminant
// rather than a Go interface, since every variant here is a flat bag
// of nonces read by mm.go and nothing dispatches on behavior.
type MmProcedure struct {
	Kind MmProcedureKind

	RS     uint64
	RandF  uint64
	AuthTy byte

	// DCKPending holds a copy of the PT's already-derived DCK for the
	// duration of a Ciphering procedure.
	DCKPending [8]byte
}

// PortablePart is the per-IPUI state retained across bearers (4. Data
// Model). It is addressed by PtID through ptArena; nothing outside
// this package ever holds a *PortablePart across a cluster-manager
// call, avoiding the back-pointer cycles the original forms between
// dect_pt, dect_dl and dect_tbc.
type PortablePart struct {
	IPUI string

	UAK    [uakLen]byte
	HasUAK bool

	DCK    [dckLen]byte
	HasDCK bool

	Audio *AudioHandle

	Procedure MmProcedure
	LastMsg   byte

	// Link is the TBC this PT's DLC endpoint currently rides on, or
	// NoTbc. A PT is retained (4. Data Model lifecycle) until this is
	// NoTbc *and* Procedure.Kind == MmNone.
	Link TbcID
}

// Retained reports whether the PT must still be kept in the arena:
// its bearer is up, or an MM procedure is mid-flight.
func (pt *PortablePart) Retained() bool {
	return pt.Link != NoTbc || pt.Procedure.Kind != MmNone
}

// BeginProcedure starts a new MM procedure, rejecting overlap with an
// already-active one (4.F: "only one active MM procedure per PT").
// It returns false, leaving state untouched, if a procedure is already
// in flight.
func (pt *PortablePart) BeginProcedure(proc MmProcedure) bool {
	if pt.Procedure.Kind != MmNone {
		return false
	}

	pt.Procedure = proc

	return true
}

// EndProcedure clears the in-flight procedure, whether it succeeded or
// was reset due to a crypto mismatch or protocol error.
func (pt *PortablePart) EndProcedure() {
	pt.Procedure = MmProcedure{}
}

// DiscardUAK is called on a RES1/RES mismatch (section 7's crypto
// mismatch handling): the UAK is discarded and subsequent bearers from
// this PT are not decryptable until a fresh key-allocation succeeds.
func (pt *PortablePart) DiscardUAK() {
	pt.HasUAK = false
	pt.UAK = [uakLen]byte{}
	pt.EndProcedure()
}
