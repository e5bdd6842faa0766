package skills

import (
	"context"

	"github.com/spf13/viper"

	"github.com/jingkaihe/docgate/pkg/logger"
)

// NewDiscoveryFromConfig builds a discovery from the skills.dirs and
// skills.builtins settings, falling back to the default directories.
func NewDiscoveryFromConfig(ctx context.Context) (*Discovery, error) {
	opts := []Option{WithBuiltins(!viper.IsSet("skills.builtins") || viper.GetBool("skills.builtins"))}

	if dirs := viper.GetStringSlice("skills.dirs"); len(dirs) > 0 {
		logger.G(ctx).WithField("dirs", dirs).Debug("using configured skill directories")
		opts = append(opts, WithSkillDirs(dirs...))
	} else {
		opts = append(opts, WithDefaultDirs())
	}

	return NewDiscovery(opts...)
}
