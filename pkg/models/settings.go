package models

// DefaultServerAddress is the detection server used until the user sets one
const DefaultServerAddress = "192.168.1.153:5000"

// Settings is the user-editable application configuration persisted under appSettings
type Settings struct {
	DarkMode      bool   `json:"darkMode"`
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
	ServerAddress string `json:"serverIp"`
}

// DefaultSettings returns the settings used on first start
func DefaultSettings() Settings {
	return Settings{
		DarkMode:      false,
		Notifications: true,
		Language:      "fr",
		ServerAddress: DefaultServerAddress,
	}
}
