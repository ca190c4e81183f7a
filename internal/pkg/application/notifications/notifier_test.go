package notifications

import (
	"context"
	"net/http"
	"testing"

	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"

	"github.com/diwise/hyperstate/pkg/hyperstate"
)

var Expects = testutils.Expects
var Returns = testutils.Returns

var method = expects.RequestMethod
var bodyContaining = expects.RequestBodyContaining

type buoy struct {
	Status string `json:"status"`
}

var buoyType = hyperstate.NewType[buoy]("Lifebuoy")

func TestSingleNotificationOnCreate(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			bodyContaining(`"type": "EntityCreated"`, `"path": "/buoys/1"`, `"status": "off"`),
		),
		Returns(
			response.Code(http.StatusOK),
		),
	)
	defer s.Close()

	ctx := context.Background()
	n, _ := NewNotifier(ctx, s.URL())

	n.Start()

	n.EntityCreated(ctx, buoyType.New("/buoys/1", "mybuoy", buoy{Status: "off"}))

	n.Stop()

	is.Equal(s.RequestCount(), 1)
}

func TestDeleteNotificationHasNoData(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			bodyContaining(`"type": "EntityDeleted"`),
		),
		Returns(
			response.Code(http.StatusOK),
		),
	)
	defer s.Close()

	ctx := context.Background()
	n, _ := NewNotifier(ctx, s.URL())

	n.Start()
	n.EntityDeleted(ctx, "/buoys/1")
	n.Stop()

	is.Equal(s.RequestCount(), 1)
}

func TestNothingIsSentWhenStopped(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, expects.AnyInput()),
		Returns(response.Code(http.StatusOK)),
	)
	defer s.Close()

	ctx := context.Background()
	n, _ := NewNotifier(ctx, s.URL())

	n.EntityUpdated(ctx, buoyType.New("/buoys/1", "mybuoy", buoy{}))

	n.Start()
	n.Stop()

	n.EntityUpdated(ctx, buoyType.New("/buoys/1", "mybuoy", buoy{}))

	is.Equal(s.RequestCount(), 0)
}

func TestNotifierCanBeRestarted(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodPost), bodyContaining(`"type": "EntityCreated"`)),
		Returns(response.Code(http.StatusOK)),
	)
	defer s.Close()

	ctx := context.Background()
	n, _ := NewNotifier(ctx, s.URL())

	is.NoErr(n.Start())
	n.EntityCreated(ctx, buoyType.New("/buoys/1", "mybuoy", buoy{Status: "on"}))
	is.NoErr(n.Stop())

	is.NoErr(n.Start())
	n.EntityCreated(ctx, buoyType.New("/buoys/2", "otherbuoy", buoy{Status: "off"}))
	is.NoErr(n.Stop())

	is.Equal(s.RequestCount(), 2)
}

func TestEndpointIsRequired(t *testing.T) {
	is := is.New(t)

	_, err := NewNotifier(context.Background(), "")
	is.True(err != nil)
}
