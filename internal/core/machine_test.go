package core

import (
	"context"
	"errors"
	"testing"

	"github.com/RecoveryAshes/PortalExtract/internal/automation"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func process(t *testing.T, m *Machine, pos int, id string) models.RecordOutcome {
	t.Helper()
	outcome, err := m.Process(context.Background(), models.Record{Position: pos, Row: pos + 1, Identifier: id}, zerolog.Nop())
	require.NoError(t, err)
	return outcome
}

func TestMachine_SuccessAndNotFound(t *testing.T) {
	fake := newFakePortal()
	fake.results["10000000191"] = fakeResult{table: resultTable("12", "R$ 1.235,00")}

	m := NewMachine(fake, testRegistry(t), testConfig(t))

	ok := process(t, m, 1, "10000000191")
	require.Equal(t, models.StatusOK, ok.Status)
	require.Equal(t, map[string]string{"parcelasPagas": "12", "saldo": "1235.00"}, ok.Fields)
	require.Equal(t, 1, ok.Attempts)

	missing := process(t, m, 2, "50000000285")
	require.Equal(t, models.StatusError, missing.Status)
	require.Equal(t, models.KindNotFound, missing.Kind)
	require.Equal(t, models.NotFoundDetail, missing.Detail)
	require.Equal(t, 1, missing.Attempts)

	// 会话在记录之间复用
	require.Equal(t, 1, m.Session().Logins)
	require.Equal(t, 1, fake.loginClicks)
	require.Equal(t, StateIdle, m.State())
}

func TestMachine_FallbackUsesNextLocator(t *testing.T) {
	fake := newFakePortal()
	fake.missing["id:cpf_input"] = true
	fake.results["1"] = fakeResult{table: resultTable("3", "10,50")}

	m := NewMachine(fake, testRegistry(t), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.StatusOK, outcome.Status)
	require.Equal(t, []string{"name:cpf"}, fake.filledWith)
	require.Equal(t, "10.50", outcome.Fields["saldo"])
}

func TestMachine_SelectorNotFoundIsNotRetried(t *testing.T) {
	fake := newFakePortal()
	fake.missing["id:cpf_input"] = true
	fake.missing["name:cpf"] = true

	m := NewMachine(fake, testRegistry(t), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.StatusError, outcome.Status)
	require.Equal(t, models.KindSelectorNotFound, outcome.Kind)
	require.Equal(t, "SelectorNotFound: campo_cpf", outcome.Detail)
	require.Equal(t, 1, outcome.Attempts)
	require.Zero(t, fake.totalSubmits())
}

func TestMachine_TimeoutRetriesExactlyMaxRetries(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2, 4} {
		t.Run("", func(t *testing.T) {
			fake := newFakePortal()
			fake.timeouts["1"] = 100

			cfg := testConfig(t)
			cfg.MaxRetries = maxRetries
			m := NewMachine(fake, testRegistry(t), cfg)
			outcome := process(t, m, 1, "1")

			require.Equal(t, models.StatusError, outcome.Status)
			require.Equal(t, models.KindElementTimeout, outcome.Kind)
			require.Equal(t, "ElementTimeout: grid_resultados", outcome.Detail)
			require.Equal(t, maxRetries+1, outcome.Attempts)
			require.Equal(t, maxRetries+1, fake.submits["1"])
		})
	}
}

func TestMachine_TimeoutThenSuccess(t *testing.T) {
	fake := newFakePortal()
	fake.timeouts["1"] = 1
	fake.results["1"] = fakeResult{table: resultTable("7", "1.000,00")}

	m := NewMachine(fake, testRegistry(t), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.StatusOK, outcome.Status)
	require.Equal(t, 2, outcome.Attempts)
	require.Equal(t, "1000.00", outcome.Fields["saldo"])
}

func TestMachine_AuthFailureIsFatal(t *testing.T) {
	fake := newFakePortal()
	cfg := testConfig(t)
	cfg.Password = "errada"

	m := NewMachine(fake, testRegistry(t), cfg)
	_, err := m.Process(context.Background(), models.Record{Position: 1, Identifier: "1"}, zerolog.Nop())

	var authErr *models.AuthError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, 3, authErr.Attempts)
	require.Equal(t, models.KindAuth, models.KindOf(err))
	require.Equal(t, 3, fake.loginClicks)
	require.Zero(t, fake.totalSubmits())
	require.False(t, m.Session().Authenticated)
}

func TestMachine_ReauthenticatesAfterSessionLoss(t *testing.T) {
	for name, queryURL := range map[string]string{
		"菜单导航": "",
		"查询地址": testQueryURL,
	} {
		t.Run(name, func(t *testing.T) {
			fake := newFakePortal()
			fake.expireAfter = 1
			fake.results["1"] = fakeResult{table: resultTable("1", "1,00")}
			fake.results["2"] = fakeResult{table: resultTable("2", "2,00")}

			cfg := testConfig(t)
			cfg.QueryURL = queryURL
			m := NewMachine(fake, testRegistry(t), cfg)

			first := process(t, m, 1, "1")
			second := process(t, m, 2, "2")

			require.Equal(t, models.StatusOK, first.Status)
			require.Equal(t, models.StatusOK, second.Status)
			require.Equal(t, 1, second.Attempts, "重新登录不计入重试")

			session := m.Session()
			assert.True(t, session.Authenticated)
			assert.Equal(t, 2, session.Logins)
			assert.Equal(t, 1, session.ReAuths)
			assert.Equal(t, 2, fake.loginClicks)
		})
	}
}

func TestMachine_RedirectToLoginAfterSubmit(t *testing.T) {
	fake := newFakePortal()
	fake.redirects[2] = true
	fake.results["1"] = fakeResult{table: resultTable("1", "1,00")}
	fake.results["2"] = fakeResult{table: resultTable("2", "2,00")}

	cfg := testConfig(t)
	cfg.MaxRetries = 0
	m := NewMachine(fake, testRegistry(t), cfg)

	first := process(t, m, 1, "1")
	second := process(t, m, 2, "2")

	require.Equal(t, models.StatusOK, first.Status)
	require.Equal(t, models.StatusOK, second.Status, second.Detail)
	require.Equal(t, 1, second.Attempts, "重新登录不计入重试")
	require.Equal(t, "2,00", second.Fields["saldo"])

	session := m.Session()
	assert.True(t, session.Authenticated)
	assert.Equal(t, 1, session.ReAuths)
	assert.Equal(t, 2, fake.loginClicks)
	assert.Equal(t, 2, fake.submits["2"], "重新登录后重新提交同一标识")
}

func TestMachine_RepeatedRedirectIsBounded(t *testing.T) {
	fake := newFakePortal()
	fake.redirects[2] = true
	fake.redirects[3] = true
	fake.results["1"] = fakeResult{table: resultTable("1", "1,00")}
	fake.results["2"] = fakeResult{table: resultTable("2", "2,00")}

	cfg := testConfig(t)
	cfg.MaxRetries = 0
	m := NewMachine(fake, testRegistry(t), cfg)

	process(t, m, 1, "1")
	second := process(t, m, 2, "2")

	require.Equal(t, models.StatusError, second.Status)
	require.Equal(t, models.KindElementTimeout, second.Kind)
	require.Equal(t, "ElementTimeout: grid_resultados", second.Detail)
	assert.Equal(t, 1, second.Attempts)
	assert.Equal(t, 1, m.Session().ReAuths, "同一次尝试内只重新登录一次")
	assert.Equal(t, 2, fake.submits["2"])
}

func TestMachine_ReusesExistingSession(t *testing.T) {
	fake := newFakePortal()
	fake.authenticated = true
	fake.results["1"] = fakeResult{table: resultTable("1", "1,00")}

	m := NewMachine(fake, testRegistry(t), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.StatusOK, outcome.Status)
	require.Zero(t, fake.loginClicks, "已登录时不再提交凭据")
	require.Empty(t, fake.typed[models.FieldPassword])
}

func TestMachine_PortalErrorBanner(t *testing.T) {
	fake := newFakePortal()
	fake.results["1"] = fakeResult{portalErr: "Serviço indisponível"}

	m := NewMachine(fake, testRegistry(t), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.KindPortal, outcome.Kind)
	require.Equal(t, "PortalError: Serviço indisponível", outcome.Detail)
	require.Equal(t, 1, outcome.Attempts)
}

func TestMachine_MissingColumnIsParseError(t *testing.T) {
	fake := newFakePortal()
	fake.results["1"] = fakeResult{table: automation.Table{
		Header: []string{"Proposta", "Parcelas Pagas"},
		Rows:   [][]string{{"0001", "12"}},
	}}

	m := NewMachine(fake, testRegistry(t), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.KindParse, outcome.Kind)
	require.Equal(t, "ParseError: saldo", outcome.Detail)
	require.Equal(t, 1, outcome.Attempts)
}

func TestMachine_BlurWhenNoQueryButton(t *testing.T) {
	fake := newFakePortal()
	fake.results["1"] = fakeResult{table: resultTable("1", "1,00")}

	m := NewMachine(fake, testRegistry(t, models.FieldQueryButton), testConfig(t))
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.StatusOK, outcome.Status)
	require.Equal(t, 1, fake.blurs)
}

func TestMachine_NavigationErrorIsTransient(t *testing.T) {
	fake := newFakePortal()
	fake.results["1"] = fakeResult{table: resultTable("1", "1,00")}

	cfg := testConfig(t)
	cfg.QueryURL = "https://outro.example/consulta"
	m := NewMachine(fake, testRegistry(t), cfg)
	outcome := process(t, m, 1, "1")

	require.Equal(t, models.StatusError, outcome.Status)
	require.Equal(t, models.KindElementTimeout, outcome.Kind)
	require.Equal(t, cfg.MaxRetries+1, outcome.Attempts)
}
