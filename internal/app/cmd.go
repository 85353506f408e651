package app

// Command はアプリケーションのサブコマンドを表す。
type Command string

const (
	// CommandServe はWebフロントのHTTPサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除を行うワーカーを起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	// CommandLogin はCLIからGoogleでサインインする。
	CommandLogin Command = "login"
	// CommandLogout はCLIのセッションを破棄する。
	CommandLogout Command = "logout"
	// CommandStatus は現在のセッションを表示する。
	CommandStatus Command = "status"
	// CommandProfile はプロフィールの表示・編集を行う。
	CommandProfile Command = "profile"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandHelpを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandHelp
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck,
		CommandLogin, CommandLogout, CommandStatus, CommandProfile:
		return cmd
	default:
		return CommandHelp
	}
}

// needsServer はDB接続を伴うサーバー系のサブコマンドかを返す。
func (c Command) needsServer() bool {
	switch c {
	case CommandServe, CommandWorker, CommandMigrate:
		return true
	default:
		return false
	}
}

const usage = `uniconnect - cuenta institucional de la Universidad de Caldas

Uso:
  uniconnect login                     Iniciar sesión con Google
  uniconnect logout                    Cerrar sesión
  uniconnect status                    Mostrar la sesión actual
  uniconnect profile show              Mostrar el perfil
  uniconnect profile edit [opciones]   Editar el perfil
  uniconnect profile avatar <ruta|url> Cambiar la foto de perfil

Servidor:
  uniconnect serve                     Iniciar el frontend web
  uniconnect worker                    Limpiar sesiones vencidas periódicamente
  uniconnect migrate                   Aplicar migraciones de base de datos
  uniconnect healthcheck               Comprobar /health del servidor local
`
