package service

import "context"

type testTxRepos struct {
	items        KnowledgeRepositoryInterface
	history      HistoryRepositoryInterface
	editRequests EditRequestRepositoryInterface
}

func (t *testTxRepos) Items() KnowledgeRepositoryInterface {
	return t.items
}

func (t *testTxRepos) History() HistoryRepositoryInterface {
	return t.history
}

func (t *testTxRepos) EditRequests() EditRequestRepositoryInterface {
	return t.editRequests
}

type testTxRunner struct {
	repos TxRepositories
	calls int
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.calls++
	return fn(t.repos)
}
