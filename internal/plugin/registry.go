package plugin

import (
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	"github.com/samber/lo"
)

// Constructor builds a plugin of one kind
type Constructor func(p Params) (FinancePlugin, error)

var constructors = map[types.PluginKind]Constructor{
	types.PluginKindPrepaid:  NewPrepaidPlugin,
	types.PluginKindPostpaid: NewPostpaidPlugin,
}

// NewPrepaidPlugin bills users against their credits
func NewPrepaidPlugin(p Params) (FinancePlugin, error) {
	return newFinancePlugin(types.PluginKindPrepaid, p)
}

// NewPostpaidPlugin bills users through invoices
func NewPostpaidPlugin(p Params) (FinancePlugin, error) {
	return newFinancePlugin(types.PluginKindPostpaid, p)
}

// New builds the plugin registered for kind
func New(kind types.PluginKind, p Params) (FinancePlugin, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, ierr.NewError("unknown finance plugin").
			WithHintf("Finance plugin %s is not available", kind).
			WithReportableDetails(map[string]any{
				"plugin":  kind,
				"allowed": lo.Keys(constructors),
			}).
			Mark(ierr.ErrValidation)
	}
	return ctor(p)
}

// NewAll builds one plugin per configured kind, in configuration order
func NewAll(p Params) ([]FinancePlugin, error) {
	plugins := make([]FinancePlugin, 0, len(p.Config.Finance.Plugins))
	for _, kind := range lo.Uniq(p.Config.Finance.Plugins) {
		fp, err := New(kind, p)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, fp)
	}
	return plugins, nil
}
