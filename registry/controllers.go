// Package registry resolves string handler references, such as
// "ChatController.Message", against registered controller objects.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/RobertWHurst/wsns"
)

var (
	ErrInvalidReference   = errors.New("invalid handler reference")
	ErrControllerNotFound = errors.New("controller not found")
	ErrMethodNotFound     = errors.New("controller method not found")
)

// Controllers is a wsns.HandlerRegistry backed by controller objects. A
// reference has the form
//
//	Name.Method[:arg1,arg2]
//
// where Name is the name the controller was registered under. When the
// reference is resolved with a controller namespace, Name is looked up as
// namespace/Name, unless the reference starts with a slash. Methods must
// have one of the handler signatures accepted by wsns.AdaptHandler. The
// arguments are available to the method through wsns.Context.HandlerArgs.
type Controllers struct {
	mu          sync.RWMutex
	controllers map[string]any
}

var _ wsns.HandlerRegistry = &Controllers{}

// New creates an empty registry.
func New() *Controllers {
	return &Controllers{
		controllers: map[string]any{},
	}
}

// Register adds a controller under name. Registering a nil controller or the
// same name twice panics.
func (c *Controllers) Register(name string, controller any) *Controllers {
	if controller == nil {
		panic("controller " + name + " must not be nil")
	}
	name = strings.Trim(name, "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.controllers[name]; ok {
		panic("controller " + name + " is already registered")
	}
	c.controllers[name] = controller
	return c
}

// Names returns the registered controller names, sorted.
func (c *Controllers) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.controllers))
	for name := range c.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveHandler implements wsns.HandlerRegistry.
func (c *Controllers) ResolveHandler(reference string, namespace string) (*wsns.HandlerBinding, error) {
	target, method, args, err := ParseReference(reference, namespace)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	controller, ok := c.controllers[target]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrControllerNotFound, target)
	}

	value := reflect.ValueOf(controller).MethodByName(method)
	if !value.IsValid() {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, target, method)
	}

	call, err := wsns.AdaptHandler(value.Interface())
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", target, method, err)
	}

	return &wsns.HandlerBinding{
		Target: target,
		Method: method,
		Args:   args,
		Call:   call,
	}, nil
}

// ParseReference splits a handler reference into the controller name,
// joined with namespace, the method name and the arguments.
func ParseReference(reference string, namespace string) (string, string, []string, error) {
	reference = strings.TrimSpace(reference)

	var args []string
	if head, rawArgs, ok := strings.Cut(reference, ":"); ok {
		reference = head
		for _, arg := range strings.Split(rawArgs, ",") {
			args = append(args, strings.TrimSpace(arg))
		}
	}

	dot := strings.LastIndex(reference, ".")
	if dot <= 0 || dot == len(reference)-1 {
		return "", "", nil, fmt.Errorf("%w: %q must be Name.Method", ErrInvalidReference, reference)
	}
	target := reference[:dot]
	method := reference[dot+1:]

	if strings.HasPrefix(target, "/") {
		target = strings.Trim(target, "/")
	} else if prefix := strings.Trim(namespace, "/"); prefix != "" {
		target = prefix + "/" + target
	}
	if target == "" {
		return "", "", nil, fmt.Errorf("%w: %q has no controller name", ErrInvalidReference, reference)
	}

	return target, method, args, nil
}
