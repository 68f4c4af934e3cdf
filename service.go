package gatts

// A Service is a BLE primary service: an ordered set of characteristics
// plus the attribute handle the host stack assigns at activation.
// Calls to AddCharacteristic must occur before the server is started.
type Service struct {
	uuid   UUID
	handle uint16
	chars  []*Characteristic

	srv *Server
}

// AddCharacteristic adds a characteristic with the given properties to
// the service. AddCharacteristic panics if the service already contains
// another characteristic with the same UUID.
func (s *Service) AddCharacteristic(u UUID, props Property) *Characteristic {
	for _, char := range s.chars {
		if uuidEqual(char.uuid, u) {
			panic("service already contains a characteristic with uuid " + u.String())
		}
	}

	char := &Characteristic{
		service: s,
		srv:     s.srv,
		uuid:    u,
		props:   props,
	}
	s.chars = append(s.chars, char)
	return char
}

// UUID returns the service's UUID.
func (s *Service) UUID() UUID {
	return s.uuid
}

// Handle returns the attribute handle the stack assigned to the service.
// It is zero until the server has been started.
func (s *Service) Handle() uint16 {
	return s.handle
}

// Characteristics returns the service's characteristics in
// registration order.
func (s *Service) Characteristics() []*Characteristic {
	cc := make([]*Characteristic, len(s.chars))
	copy(cc, s.chars)
	return cc
}
