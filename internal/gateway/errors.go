package gateway

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/svcgateway/svcgw/internal/util"
)

// errorBody is the JSON envelope for gateway-originated errors.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// writeError renders a gateway error as JSON. Rate-limit rejections
// additionally carry a Retry-After header.
func writeError(c *gin.Context, err error) {
	gwErr := util.AsGatewayError(err)

	body := errorBody{
		Error:   errorCode(gwErr),
		Message: gwErr.Message,
	}

	if gwErr.RetryAfter > 0 {
		seconds := retryAfterSeconds(gwErr.RetryAfter)
		body.RetryAfter = seconds
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
	}

	c.JSON(gwErr.HTTPStatus(), body)
}

// errorCode maps a gateway error to its wire identifier.
func errorCode(gwErr *util.GatewayError) string {
	switch gwErr.Code {
	case util.ErrForbidden:
		return "forbidden"
	case util.ErrPayloadTooLarge:
		return "payload_too_large"
	case util.ErrUnauthorized:
		return "unauthorized"
	case util.ErrTooManyRequests:
		return "too_many_requests"
	case util.ErrServiceUnavail:
		return "service_unavailable"
	case util.ErrNoHealthyBackend:
		return "no_healthy_backend"
	case util.ErrBackendTimeout:
		return "backend_timeout"
	case util.ErrBackendError:
		return "backend_error"
	default:
		return "internal_error"
	}
}

// retryAfterSeconds rounds a duration up to whole seconds so clients
// never retry before the window actually resets.
func retryAfterSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
