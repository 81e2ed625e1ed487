package common

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkSepolia Network = "sepolia"
	NetworkHolesky Network = "holesky"
)

var chainIDs = map[Network]uint64{
	NetworkMainnet: 1,
	NetworkSepolia: 11155111,
	NetworkHolesky: 17000,
}

// IsSupported reports whether the network is known. An empty network is
// supported and disables chain id verification.
func (n Network) IsSupported() bool {
	if n == "" {
		return true
	}
	_, ok := chainIDs[n]
	return ok
}

// ChainID returns the EIP-155 chain id of the network, or false if unknown.
func (n Network) ChainID() (uint64, bool) {
	id, ok := chainIDs[n]
	return id, ok
}

func (n Network) String() string {
	return string(n)
}
