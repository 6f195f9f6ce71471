// Package loader provides the plugin-like feature loading system.
//
// Each feature (books, users, lending) implements the Feature interface and is
// registered with a Manager by the start command.
//
// # Feature Interface
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// # Manager
//
// The Manager struct holds the registry of available features. It handles:
//   - Registration of features via Register()
//   - Loading of enabled features via LoadAll(), in registration order
package loader
