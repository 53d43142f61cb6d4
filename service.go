package nanorpc

// Service is a named collection of methods, identified by the hash of its
// fully qualified name. Its method table is built once at
// construction and never mutated afterward, so lookups are a plain linear
// scan over a small slice.
type Service struct {
	Name    string
	ID      uint32
	methods []MethodDescriptor
}

// NewService builds a Service from its fully qualified name and methods,
// hashing the service name and every method name and refusing to register
// if any two names collide on the same 32-bit id.
func NewService(name string, methods ...MethodDescriptor) (*Service, error) {
	this := new(Service)
	this.Name = name
	this.ID = HashName(name)

	methodNames := newIDRegistry()
	this.methods = make([]MethodDescriptor, len(methods))
	for i, method := range methods {
		id, err := methodNames.Register(method.Name)
		if err != nil {
			return nil, err
		}
		method.ID = id
		this.methods[i] = method
	}
	return this, nil
}

// methodByID finds a method by its hashed id via linear scan; a service's
// method count is always small enough that this beats a map.
func (this *Service) methodByID(id uint32) (*MethodDescriptor, bool) {
	for i := range this.methods {
		if this.methods[i].ID == id {
			return &this.methods[i], true
		}
	}
	return nil, false
}

// Methods returns the service's method table. Callers must not mutate it.
func (this *Service) Methods() []MethodDescriptor {
	return this.methods
}
