package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/climate-crusade/weather"
	"github.com/spf13/cobra"
)

func newWeatherCmd() *cobra.Command {
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the current weather at a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			locator := weather.StaticLocator{}
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				locator.Position = &weather.Coordinates{Latitude: lat, Longitude: lon}
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				conditions, err := a.Weather.AtDevice(ctx, locator)
				if err != nil {
					return err
				}
				printConditions(cmd.OutOrStdout(), conditions)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	return cmd
}

func printConditions(out io.Writer, c *weather.Conditions) {
	fmt.Fprintf(out, "%s\n", c.Location)
	fmt.Fprintf(out, "  %.1f°C, %s\n", c.TemperatureC, c.Description)
	fmt.Fprintf(out, "  Feels like: %.1f°C\n", c.FeelsLikeC)
	fmt.Fprintf(out, "  Humidity:   %d%%\n", c.Humidity)
	fmt.Fprintf(out, "  Wind speed: %.1f m/s\n", c.WindSpeed)
	if c.IconURL != "" {
		fmt.Fprintf(out, "  Icon:       %s\n", c.IconURL)
	}
}
