package nsapi

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format of the NS web services
const TimeLayout = "2006-01-02T15:04:05-0700"

type stationsResponse struct {
	Stations []Station `xml:"Station"`
}

type Station struct {
	Code     string       `xml:"Code"`
	Type     string       `xml:"Type"`
	Names    StationNames `xml:"Namen"`
	Country  string       `xml:"Land"`
	UICCode  string       `xml:"UICCode"`
	Lat      float64      `xml:"Lat"`
	Lon      float64      `xml:"Lon"`
	Synonyms []string     `xml:"Synoniemen>Synoniem"`
}

type StationNames struct {
	Short  string `xml:"Kort"`
	Medium string `xml:"Middel"`
	Long   string `xml:"Lang"`
}

type departuresResponse struct {
	Departures []Departure `xml:"VertrekkendeTrein"`
}

type Departure struct {
	RideNumber    string      `xml:"RitNummer"`
	DepartureTime Time        `xml:"VertrekTijd"`
	Delay         ISODuration `xml:"VertrekVertraging"`
	DelayText     string      `xml:"VertrekVertragingTekst"`
	Destination   string      `xml:"EindBestemming"`
	TrainType     string      `xml:"TreinSoort"`
	RouteText     string      `xml:"RouteTekst"`
	Carrier       string      `xml:"Vervoerder"`
	Track         string      `xml:"VertrekSpoor"`
	Tip           string      `xml:"ReisTip"`
}

type travelAdviceResponse struct {
	Options []TravelOption `xml:"ReisMogelijkheid"`
}

type TravelOption struct {
	Notices          []TravelNotice `xml:"Melding"`
	Transfers        int            `xml:"AantalOverstappen"`
	PlannedDuration  TravelDuration `xml:"GeplandeReisTijd"`
	ActualDuration   TravelDuration `xml:"ActueleReisTijd"`
	Optimal          bool           `xml:"Optimaal"`
	PlannedDeparture Time           `xml:"GeplandeVertrekTijd"`
	ActualDeparture  Time           `xml:"ActueleVertrekTijd"`
	PlannedArrival   Time           `xml:"GeplandeAankomstTijd"`
	ActualArrival    Time           `xml:"ActueleAankomstTijd"`
	Status           string         `xml:"Status"`
	Parts            []TravelPart   `xml:"ReisDeel"`
}

type TravelNotice struct {
	ID      string `xml:"Id"`
	Serious bool   `xml:"Ernstig"`
	Text    string `xml:"Text"`
}

type TravelPart struct {
	Carrier       string       `xml:"Vervoerder"`
	TransportType string       `xml:"VervoerType"`
	RideNumber    string       `xml:"RitNummer"`
	Status        string       `xml:"Status"`
	Details       []string     `xml:"ReisDetails>ReisDetail"`
	Stops         []TravelStop `xml:"ReisStop"`
}

type TravelStop struct {
	Name           string       `xml:"Naam"`
	Time           Time         `xml:"Tijd"`
	DepartureDelay DelayMinutes `xml:"VertrekVertraging"`
	Track          string       `xml:"Spoor"`
}

type errorResponse struct {
	Message string `xml:"message"`
}

func decodeText(d *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// Time is an NS timestamp. An empty element decodes to the zero time.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	s, err := decodeText(d, start)
	if err != nil || s == "" {
		return err
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return fmt.Errorf("parsing time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// ISODuration is an ISO-8601 duration such as PT5M
type ISODuration struct {
	time.Duration
}

func (d *ISODuration) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	s, err := decodeText(dec, start)
	if err != nil || s == "" {
		return err
	}
	parsed, err := ParseISODuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

var isoDurationPattern = regexp.MustCompile(`^([-+]?)P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses the day and time parts of an ISO-8601 duration
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}

	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	if m[5] != "" {
		secs, err := strconv.ParseFloat(m[5], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		total += time.Duration(secs * float64(time.Second))
	}
	if m[1] == "-" {
		total = -total
	}
	return total, nil
}

// DelayMinutes is a travel advice delay such as "+5 min"
type DelayMinutes struct {
	time.Duration
}

func (d *DelayMinutes) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	s, err := decodeText(dec, start)
	if err != nil || s == "" {
		return err
	}
	parsed, err := ParseDelayMinutes(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

var delayMinutesPattern = regexp.MustCompile(`^([-+]?)\s*(\d+)\s*min$`)

func ParseDelayMinutes(s string) (time.Duration, error) {
	m := delayMinutesPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", s, err)
	}
	delay := time.Duration(n) * time.Minute
	if m[1] == "-" {
		delay = -delay
	}
	return delay, nil
}

// TravelDuration is a travel advice duration such as "1:05"
type TravelDuration struct {
	time.Duration
}

func (d *TravelDuration) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	s, err := decodeText(dec, start)
	if err != nil || s == "" {
		return err
	}
	parsed, err := ParseTravelDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func ParseTravelDuration(s string) (time.Duration, error) {
	hours, minutes, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid travel duration %q", s)
	}
	h, err := strconv.Atoi(hours)
	if err != nil {
		return 0, fmt.Errorf("invalid travel duration %q: %w", s, err)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 || m >= 60 {
		return 0, fmt.Errorf("invalid travel duration %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
