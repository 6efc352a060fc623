package rayid

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// Header is the response header carrying the ray id.
	Header = "X-Ray-ID"
	// LocalsKey is where handlers find the ray id.
	LocalsKey = "ray_id"
)

// New creates a middleware that tags every request with a ray id. A ray id
// sent by the caller is kept.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Header values are only valid during the handler.
		id := strings.Clone(c.Get(Header))
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(LocalsKey, id)
		c.Set(Header, id)
		return c.Next()
	}
}
