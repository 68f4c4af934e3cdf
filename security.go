package gatts

// Security configures pairing and bonding. All setters are simple
// pass-throughs to the host stack's security manager and must be called
// before the server is started; they return the receiver so calls can
// be chained.
type Security struct {
	cfg     SecurityConfig
	passkey uint32
}

func newSecurity(cfg SecurityConfig) *Security {
	return &Security{cfg: cfg}
}

// SetAuth sets the authentication requirements advertised during
// pairing: bonding, man-in-the-middle protection, and LE Secure
// Connections.
func (s *Security) SetAuth(bonding, mitm, sc bool) *Security {
	s.cfg.SetAuth(bonding, mitm, sc)
	return s
}

// SetIOCap sets the device's pairing input/output capability.
func (s *Security) SetIOCap(cap IOCap) *Security {
	s.cfg.SetIOCap(cap)
	return s
}

// SetInitKeyDist sets the keys distributed when this device initiates
// the security procedure.
func (s *Security) SetInitKeyDist(kd KeyDist) *Security {
	s.cfg.SetInitKeyDist(kd)
	return s
}

// SetRespKeyDist sets the keys this device is willing to accept during
// pairing.
func (s *Security) SetRespKeyDist(kd KeyDist) *Security {
	s.cfg.SetRespKeyDist(kd)
	return s
}

// SetPasskey sets the static passkey displayed or compared during
// pairing.
func (s *Security) SetPasskey(passkey uint32) *Security {
	s.passkey = passkey
	return s
}

// Passkey returns the configured static passkey.
func (s *Security) Passkey() uint32 {
	return s.passkey
}
