package renderer

// DeviceType selects the emulated device profile for a render.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
)

// ParseDeviceType maps a request path segment to a device type. Empty
// defaults to desktop; anything else is rejected.
func ParseDeviceType(s string) (DeviceType, bool) {
	switch s {
	case "", string(DeviceDesktop):
		return DeviceDesktop, true
	case string(DeviceMobile):
		return DeviceMobile, true
	}
	return "", false
}

// deviceProfile is the viewport the browser emulates for a device type.
type deviceProfile struct {
	Width  int64
	Height int64
	Scale  float64
	Mobile bool
}

var deviceProfiles = map[DeviceType]deviceProfile{
	DeviceDesktop: {Width: 1920, Height: 1080, Scale: 1, Mobile: false},
	DeviceMobile:  {Width: 375, Height: 812, Scale: 3, Mobile: true},
}

// paperSize is a PDF page size in inches.
type paperSize struct {
	Width  float64
	Height float64
}

var paperSizes = map[string]paperSize{
	"letter": {8.5, 11},
	"a4":     {8.27, 11.69},
	"legal":  {8.5, 14},
}

// PaperSize resolves a page format name. The second return is false for
// unsupported formats.
func PaperSize(format string) (width, height float64, ok bool) {
	p, ok := paperSizes[format]
	return p.Width, p.Height, ok
}
