package sync

// OpType is the outcome of reconciling one item.
type OpType string

const (
	OpNoop         OpType = "Noop"
	OpPush         OpType = "Push"
	OpPull         OpType = "Pull"
	OpAdopt        OpType = "Adopt"
	OpConflict     OpType = "Conflict"
	OpUntrack      OpType = "Untrack"
	OpCreateLocal  OpType = "CreateLocal"
	OpDeleteRemote OpType = "DeleteRemote"
	OpDeleteLocal  OpType = "DeleteLocal"
	OpSoftDelete   OpType = "SoftDelete"
	OpError        OpType = "Error"
	// OpSkipped means a narrow reconcile declined to act and a full pass is needed.
	OpSkipped OpType = "Skipped"
)

// decide is the three-way table shared by recipes and tree files. base is the
// baseline hash, local the current local hash. remoteChanged reports whether
// the remote moved away from the baseline; remote is only read when it did.
func decide(base, local uint32, remoteChanged bool, remote uint32) OpType {
	if !remoteChanged {
		if local == base {
			return OpNoop
		}
		return OpPush
	}

	switch {
	case remote == local:
		return OpAdopt
	case local == base:
		return OpPull
	default:
		return OpConflict
	}
}
