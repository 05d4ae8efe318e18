package models

// Tool is the wgck.toml [Tool] table. Every field can be overridden by a
// WGCK_* environment variable.
type Tool struct {
	Document       string   `toml:"Document" split_words:"true"`
	StateFile      string   `toml:"StateFile" split_words:"true"`
	Template       string   `toml:"Template" split_words:"true"`
	OutputDir      string   `toml:"OutputDir" split_words:"true"`
	KeyTool        string   `toml:"KeyTool" split_words:"true"`
	Adapter        string   `toml:"Adapter" split_words:"true"`
	EndpointAddr   string   `toml:"EndpointAddress" split_words:"true"`
	DNS            []string `toml:"DNS" split_words:"true"`
	KeepAlive      int      `toml:"PersistentKeepalive" split_words:"true"`
	RestartService bool     `toml:"RestartService" split_words:"true"`
	Debug          bool     `toml:"Debug" split_words:"true"`
}

type ToolConf struct {
	Tool Tool `toml:"Tool"`
}
