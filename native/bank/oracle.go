package bank

// StaticFeeOracle reports a fixed fee split. The finalization engine still
// queries it fresh on every call, so deployments backed by a live oracle can
// swap in an implementation whose answers change over time.
type StaticFeeOracle struct {
	Recipient [20]byte
	Percent   uint8
}

func (o StaticFeeOracle) FeeRecipient() ([20]byte, error) { return o.Recipient, nil }

func (o StaticFeeOracle) FeePercent() (uint8, error) { return o.Percent, nil }
