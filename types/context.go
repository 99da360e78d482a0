package types

// AppContext holds application-wide context information passed to commands
type AppContext struct {
	Version string
}
