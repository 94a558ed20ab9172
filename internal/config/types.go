// Package config resolves the worker's TOML configuration document into
// a flat list of leaf MirrorConfig values, and diffs two such lists for
// hot reload.
package config

// Role is a mirror's sync role.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// ProviderKind selects which Provider implementation realizes a mirror.
type ProviderKind string

const (
	ProviderCommand       ProviderKind = "command"
	ProviderRsync         ProviderKind = "rsync"
	ProviderTwoStageRsync ProviderKind = "two_stage_rsync"
)

// MirrorConfig is one [[mirrors]] entry, before or after merge with its
// parent. Pointer fields distinguish "unset" from zero value so merge
// (§4.1) can apply right-biased overrides field by field.
type MirrorConfig struct {
	Name     string       `toml:"name"`
	Provider ProviderKind `toml:"provider"`
	Upstream string       `toml:"upstream"`

	Interval *int `toml:"interval"`
	Retry    *int `toml:"retry"`
	Timeout  *int `toml:"timeout"`

	MirrorDir    string `toml:"mirror_dir"`
	MirrorSubDir string `toml:"mirror_sub_dir"`
	LogDir       string `toml:"log_dir"`

	Env map[string]string `toml:"env"`

	Role Role `toml:"role"`

	Command      string `toml:"command"`
	FailOnMatch  string `toml:"fail_on_match"`
	SizePattern  string `toml:"size_pattern"`

	UseIPv4     bool `toml:"use_ipv4"`
	UseIPv6     bool `toml:"use_ipv6"`
	ExcludeFile string `toml:"exclude_file"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`

	RsyncNoTimeout bool     `toml:"rsync_no_timeout"`
	RsyncTimeout   *int     `toml:"rsync_timeout"`
	RsyncOptions   []string `toml:"rsync_options"`
	RsyncOverride  []string `toml:"rsync_override"`

	Stage1Profile string `toml:"stage1_profile"`

	MemoryLimit MemBytes `toml:"memory_limit"`

	DockerImage   string   `toml:"docker_image"`
	DockerVolumes []string `toml:"docker_volumes"`
	DockerOptions []string `toml:"docker_options"`

	SnapshotPath string `toml:"snapshot_path"`

	ExecOnSuccess      string `toml:"exec_on_success"`
	ExecOnFailure      string `toml:"exec_on_failure"`
	ExecOnSuccessExtra string `toml:"exec_on_success_extra"`
	ExecOnFailureExtra string `toml:"exec_on_failure_extra"`

	ChildMirrors []MirrorConfig `toml:"mirrors"`
}

// GlobalConfig carries the worker-wide defaults mirrors inherit from.
type GlobalConfig struct {
	Name       string `toml:"name"`
	LogDir     string `toml:"log_dir"`
	MirrorDir  string `toml:"mirror_dir"`
	Concurrent int    `toml:"concurrent"`
	Interval   int    `toml:"interval"`
	Retry      int    `toml:"retry"`
	Timeout    int    `toml:"timeout"`

	ExecOnSuccess string `toml:"exec_on_success"`
	ExecOnFailure string `toml:"exec_on_failure"`
}

// ManagerConfig points the worker at one or more managers.
type ManagerConfig struct {
	APIBase string   `toml:"api_base"`
	APIList []string `toml:"api_list"`
	Token   string   `toml:"token"`
	CACert  string   `toml:"ca_cert"`
}

// ServerConfig configures the worker's own control HTTP endpoint.
type ServerConfig struct {
	Hostname    string `toml:"hostname"`
	ListenAddr  string `toml:"listen_addr"`
	ListenPort  int    `toml:"listen_port"`
	SSLCert     string `toml:"ssl_cert"`
	SSLKey      string `toml:"ssl_key"`
}

// ZFSConfig enables the ZfsHook workerwide.
type ZFSConfig struct {
	Enable bool   `toml:"enable"`
	ZPool  string `toml:"zpool"`
}

// BtrfsSnapshotConfig enables the BtrfsSnapshotHook workerwide.
type BtrfsSnapshotConfig struct {
	Enable       bool   `toml:"enable"`
	SnapshotPath string `toml:"snapshot_path"`
}

// DockerConfig carries workerwide docker hook defaults, merged with
// per-mirror overrides at provider construction.
type DockerConfig struct {
	Enable  bool     `toml:"enable"`
	Volumes []string `toml:"volumes"`
	Options []string `toml:"options"`
}

// IncludeConfig names the glob pulling in extra [[mirrors]] arrays.
type IncludeConfig struct {
	IncludeMirrors string `toml:"include_mirrors"`
}

// Config is the top-level document.
type Config struct {
	Global        GlobalConfig        `toml:"global"`
	Manager       ManagerConfig       `toml:"manager"`
	Server        ServerConfig        `toml:"server"`
	ZFS           ZFSConfig           `toml:"zfs"`
	BtrfsSnapshot BtrfsSnapshotConfig `toml:"btrfs_snapshot"`
	Docker        DockerConfig        `toml:"docker"`
	Include       IncludeConfig       `toml:"include"`

	MirrorsRaw []MirrorConfig `toml:"mirrors"`

	// Mirrors holds the flattened, merged leaf configs after Resolve.
	Mirrors []MirrorConfig `toml:"-"`
}

func intPtr(v int) *int { return &v }
