package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/wodify-ap/internal/executor"
	"github.com/example/wodify-ap/internal/strategy"
)

// Site describes the third-party web UI. Every field can be overridden from
// a YAML file so markup changes do not need a rebuild.
type Site struct {
	LoginURL    string       `yaml:"login_url"`
	ScheduleURL string       `yaml:"schedule_url"`
	WodURL      string       `yaml:"wod_url"`
	ResultsURL  string       `yaml:"results_url"`
	Login       LoginSite    `yaml:"login"`
	Schedule    ScheduleSite `yaml:"schedule"`
	Wod         WodSite      `yaml:"wod"`
	UserAgent   string       `yaml:"user_agent"`
}

type LoginSite struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Submit         string `yaml:"submit"`
	LoggedInMarker string `yaml:"logged_in_marker"`
	Feedback       string `yaml:"feedback"`
	InvalidText    string `yaml:"invalid_text"`
	Captcha        string `yaml:"captcha"`
}

type ScheduleSite struct {
	Row        string `yaml:"row"`
	DateHeader string `yaml:"date_header"`
	Label      string `yaml:"label"`
	Control    string `yaml:"control"`
}

type WodSite struct {
	DateInput string `yaml:"date_input"`
	List      string `yaml:"list"`
	Component string `yaml:"component"`
	Name      string `yaml:"name"`
	Content   string `yaml:"content"`
	Comment   string `yaml:"comment"`

	ResultTable string `yaml:"result_table"`
	ResultRx    string `yaml:"result_rx"`
}

func DefaultSite() Site {
	sched := strategy.DefaultScheduleSelectors
	wod := strategy.DefaultWodSelectors
	return Site{
		LoginURL:    "https://app.wodify.com",
		ScheduleURL: "https://app.wodify.com/Schedule/CalendarListViewEntry.aspx",
		WodURL:      "https://app.wodify.com/WOD/WODEntry.aspx",
		ResultsURL:  "https://app.wodify.com/Performance/MyPerformance_Metcon.aspx",
		Login: LoginSite{
			Username:       "#Input_UserName",
			Password:       "#Input_Password",
			Submit:         ".signin-btn",
			LoggedInMarker: `[id$="wtLogoutLink"]`,
			Feedback:       ".feedback-message-text",
			InvalidText:    "Invalid email or password.",
			Captcha:        "#recaptcha-verify-button",
		},
		Schedule: ScheduleSite{Row: sched.Row, DateHeader: sched.DateHeader, Label: sched.Label, Control: sched.Control},
		Wod: WodSite{
			DateInput: wod.DateInput,
			List:      wod.List,
			Component: wod.Component,
			Name:      wod.Name,
			Content:   wod.Content,
			Comment:   wod.Comment,

			ResultTable: wod.ResultTable,
			ResultRx:    wod.ResultRx,
		},
	}
}

// LoadSite overlays the YAML file at path on DefaultSite.
func LoadSite(path string) (Site, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("read site file: %w", err)
	}
	s := DefaultSite()
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Site{}, fmt.Errorf("parse site file %s: %w", path, err)
	}
	if s.LoginURL == "" || s.Login.Username == "" || s.Login.Password == "" || s.Login.Submit == "" || s.Login.LoggedInMarker == "" {
		return Site{}, fmt.Errorf("site file %s: login url and selectors must not be empty", path)
	}
	return s, nil
}

func (s Site) LoginForm() executor.LoginForm {
	return executor.LoginForm{
		URL:            s.LoginURL,
		Username:       s.Login.Username,
		Password:       s.Login.Password,
		Submit:         s.Login.Submit,
		LoggedInMarker: s.Login.LoggedInMarker,
		Feedback:       s.Login.Feedback,
		InvalidText:    s.Login.InvalidText,
		Captcha:        s.Login.Captcha,
	}
}

func (s Site) ScheduleSelectors() strategy.ScheduleSelectors {
	return strategy.ScheduleSelectors{
		Row:        s.Schedule.Row,
		DateHeader: s.Schedule.DateHeader,
		Label:      s.Schedule.Label,
		Control:    s.Schedule.Control,
	}
}

func (s Site) WodSelectors() strategy.WodSelectors {
	return strategy.WodSelectors{
		DateInput: s.Wod.DateInput,
		List:      s.Wod.List,
		Component: s.Wod.Component,
		Name:      s.Wod.Name,
		Content:   s.Wod.Content,
		Comment:   s.Wod.Comment,

		ResultTable: s.Wod.ResultTable,
		ResultRx:    s.Wod.ResultRx,
	}
}
