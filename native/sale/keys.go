package sale

var (
	configKey         = []byte("sale/config")
	statusKey         = []byte("sale/status")
	participantPrefix = []byte("sale/participant/")
	whitelistPrefix   = []byte("sale/whitelist/")
)

func participantKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(participantPrefix)+len(addr))
	key = append(key, participantPrefix...)
	return append(key, addr[:]...)
}

func whitelistKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(whitelistPrefix)+len(addr))
	key = append(key, whitelistPrefix...)
	return append(key, addr[:]...)
}
