package weather

import (
	"context"
	"fmt"
	"math"
	"net/http"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/internal/rest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultFunction = "get-weather"
	iconURLFormat   = "https://openweathermap.org/img/wn/%s@2x.png"
	kelvinOffset    = 273.15
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects coordinates that are unset (zero), not finite, or out of range.
func (c Coordinates) Validate() error {
	valid := func(v, limit float64) bool {
		return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= limit
	}
	if !valid(c.Latitude, 90) || !valid(c.Longitude, 180) {
		return errors.Wrapf(apperrors.ErrInvalidCoordinates, "latitude %v, longitude %v", c.Latitude, c.Longitude)
	}
	return nil
}

// Conditions are the current conditions at a location, temperatures in Celsius.
type Conditions struct {
	Location     string
	TemperatureC float64
	FeelsLikeC   float64
	Humidity     int
	Summary      string
	Description  string
	IconURL      string
	WindSpeed    float64 // m/s
}

// report is the OpenWeatherMap-shaped payload returned by the weather function.
type report struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (r *report) normalise() (*Conditions, error) {
	if len(r.Weather) == 0 {
		return nil, errors.New("weather response has no conditions")
	}
	w := r.Weather[0]
	c := &Conditions{
		Location:     r.Name,
		TemperatureC: KelvinToCelsius(r.Main.Temp),
		FeelsLikeC:   KelvinToCelsius(r.Main.FeelsLike),
		Humidity:     r.Main.Humidity,
		Summary:      w.Main,
		Description:  w.Description,
		WindSpeed:    r.Wind.Speed,
	}
	if w.Icon != "" {
		c.IconURL = fmt.Sprintf(iconURLFormat, w.Icon)
	}
	return c, nil
}

func KelvinToCelsius(k float64) float64 {
	return k - kelvinOffset
}

type Client struct {
	backend  *rest.Client
	function string
	logger   zerolog.Logger
}

type Option func(*Client)

func WithFunction(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.function = name
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "weather").Logger()
	}
}

func NewClient(backend *rest.Client, options ...Option) *Client {
	c := &Client{
		backend:  backend,
		function: DefaultFunction,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Current invokes the weather function for coords. Invalid coordinates are rejected
// before any request is made.
func (c *Client) Current(ctx context.Context, coords Coordinates) (*Conditions, error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}

	c.logger.Debug().Float64("lat", coords.Latitude).Float64("lon", coords.Longitude).Msg("fetching weather")
	var r report
	err := c.backend.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/functions/v1/" + c.function,
		Body:   coords,
		Out:    &r,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Current] failed to get weather")
	}

	conditions, err := r.normalise()
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Current]")
	}
	return conditions, nil
}

// AtDevice asks locator for the device position and fetches the weather there.
func (c *Client) AtDevice(ctx context.Context, locator Locator) (*Conditions, error) {
	coords, err := locator.Locate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.AtDevice]")
	}
	return c.Current(ctx, coords)
}
