//go:build linux

package keepawake

// NewDefaultAdapter blocks idle and sleep through logind for as long as
// the inhibitor runs.
func NewDefaultAdapter() Adapter {
	return NewCommandAdapter("systemd-inhibit",
		"--what=idle:sleep",
		"--who=remotekeys",
		"--why=Remote keyboard session",
		"--mode=block",
		"sleep", "infinity",
	)
}
