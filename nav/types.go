package nav

// Config is the service configuration loaded from YAML.
type Config struct {
	MQTT         MQTTConfig      `yaml:"mqtt"`
	Map          string          `yaml:"map"` // recorded map: file path or http(s) URL
	HeadingCache string          `yaml:"headingCache,omitempty"`
	Guidance     GuidanceConfig  `yaml:"guidance"`
	Alignment    AlignmentConfig `yaml:"alignment"`
	Heading      HeadingConfig   `yaml:"heading"`
}

// MQTTConfig holds broker settings and the topics the service uses.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`

	PoseTopic        string `yaml:"poseTopic,omitempty"`
	LandmarkTopic    string `yaml:"landmarkTopic,omitempty"`
	GeolocationTopic string `yaml:"geolocationTopic,omitempty"`
	RouteTopic       string `yaml:"routeTopic,omitempty"`
}

// TargetDimensions are the half-extents (m) of a keypoint's arrival box in
// its local frame.
type TargetDimensions struct {
	Width  float64 `yaml:"width" json:"width"`
	Depth  float64 `yaml:"depth" json:"depth"`
	Height float64 `yaml:"height" json:"height"`
}

// GuidanceConfig tunes the direction engine.
type GuidanceConfig struct {
	Intermediate TargetDimensions `yaml:"intermediate"`
	Final        TargetDimensions `yaml:"final"`
	CloseRadius  float64          `yaml:"closeRadius"`

	// The user counts as facing the next keypoint when the lateral ratio
	// is below FacingLateralRatio or the bearing error is inside
	// FacingCone degrees.
	FacingLateralRatio float64 `yaml:"facingLateralRatio"`
	FacingCone         float64 `yaml:"facingConeDeg"`

	// PlainPhrases drops the "at N o'clock" wording from spoken directions.
	PlainPhrases bool `yaml:"plainPhrases"`

	// IgnoreHeadingOffset stops the calibrated heading offset from biasing
	// the device yaw.
	IgnoreHeadingOffset bool `yaml:"ignoreHeadingOffset"`
}

// AlignmentConfig tunes the landmark voting.
type AlignmentConfig struct {
	AgreementRadius float64 `yaml:"agreementRadius"`
}

// HeadingConfig tunes the heading offset calibrator.
type HeadingConfig struct {
	BufferSize       int     `yaml:"bufferSize"`
	MinDistance      float64 `yaml:"minDistance"`
	HeadingTolerance float64 `yaml:"headingToleranceDeg"`
	LinearTolerance  float64 `yaml:"linearTolerance"`
	LostTolerance    float64 `yaml:"lostToleranceDeg"`
}

// Default topic names used when the config leaves them empty.
const (
	DefaultPoseTopic        = "wayfinder/device/pose"
	DefaultLandmarkTopic    = "wayfinder/device/landmark"
	DefaultGeolocationTopic = "wayfinder/device/geolocation"
	DefaultRouteTopic       = "wayfinder/route/request"
	DefaultPublishPrefix    = "wayfinder"
)

// DefaultGuidanceConfig returns the arrival boxes used on the device.
func DefaultGuidanceConfig() GuidanceConfig {
	return GuidanceConfig{
		Intermediate: TargetDimensions{Width: 2.0, Depth: 0.5, Height: 3.0},
		Final:        TargetDimensions{Width: 1.0, Depth: 1.0, Height: 3.0},
		CloseRadius:  4.0,

		FacingLateralRatio: 0.5,
		FacingCone:         15,
	}
}

// DefaultAlignmentConfig returns the 2 m agreement radius.
func DefaultAlignmentConfig() AlignmentConfig {
	return AlignmentConfig{AgreementRadius: 2.0}
}

// DefaultHeadingConfig returns the calibrator defaults.
func DefaultHeadingConfig() HeadingConfig {
	return HeadingConfig{
		BufferSize:       20,
		MinDistance:      2.0,
		HeadingTolerance: 20,
		LinearTolerance:  0.3,
		LostTolerance:    45,
	}
}

// DefaultConfig returns a config with every tunable set and no broker.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills zero values.
func (c *Config) applyDefaults() {
	g := DefaultGuidanceConfig()
	if c.Guidance.Intermediate == (TargetDimensions{}) {
		c.Guidance.Intermediate = g.Intermediate
	}
	if c.Guidance.Final == (TargetDimensions{}) {
		c.Guidance.Final = g.Final
	}
	if c.Guidance.CloseRadius == 0 {
		c.Guidance.CloseRadius = g.CloseRadius
	}
	if c.Guidance.FacingLateralRatio == 0 {
		c.Guidance.FacingLateralRatio = g.FacingLateralRatio
	}
	if c.Guidance.FacingCone == 0 {
		c.Guidance.FacingCone = g.FacingCone
	}

	if c.Alignment.AgreementRadius == 0 {
		c.Alignment = DefaultAlignmentConfig()
	}

	h := DefaultHeadingConfig()
	if c.Heading.BufferSize == 0 {
		c.Heading.BufferSize = h.BufferSize
	}
	if c.Heading.MinDistance == 0 {
		c.Heading.MinDistance = h.MinDistance
	}
	if c.Heading.HeadingTolerance == 0 {
		c.Heading.HeadingTolerance = h.HeadingTolerance
	}
	if c.Heading.LinearTolerance == 0 {
		c.Heading.LinearTolerance = h.LinearTolerance
	}
	if c.Heading.LostTolerance == 0 {
		c.Heading.LostTolerance = h.LostTolerance
	}

	if c.MQTT.PoseTopic == "" {
		c.MQTT.PoseTopic = DefaultPoseTopic
	}
	if c.MQTT.LandmarkTopic == "" {
		c.MQTT.LandmarkTopic = DefaultLandmarkTopic
	}
	if c.MQTT.GeolocationTopic == "" {
		c.MQTT.GeolocationTopic = DefaultGeolocationTopic
	}
	if c.MQTT.RouteTopic == "" {
		c.MQTT.RouteTopic = DefaultRouteTopic
	}
}
