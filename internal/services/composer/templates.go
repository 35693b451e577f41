package composer

// Шаблоны по умолчанию: используются, пока админка не записала свои в стор.
// Неразрешённые плейсхолдеры остаются в тексте как есть.
const defaultUpdateTemplate = `{nome},

Tô passando pra avisar que sua encomenda movimentou! 📦

{emoji} {status}
📍 Localização: {local}
🚛 Rota: {rota}

🕒 Última atualização: {data}

Você também pode acompanhar o pedido sempre que quiser pelo link: 👇
https://melhorrastreio.com.br/{codigo}

Mas pode deixar que assim que tiver alguma novidade, corro aqui pra te avisar! 🏃‍♀️

⚠️ Ah, e atenção: nunca solicitamos pagamentos adicionais, dados ou senhas para finalizar a entrega.

Se tiver dúvidas, entre em contato conosco.

Até mais! 💙`

const defaultWelcomeTemplate = `{nome}, sua encomenda foi postada! 📮

A partir de agora eu te aviso por aqui sempre que ela se movimentar.

{emoji} {status}

🕒 {data}

Acompanhe quando quiser pelo link: 👇
https://melhorrastreio.com.br/{codigo}

⚠️ Atenção: nunca solicitamos pagamentos adicionais, dados ou senhas para finalizar a entrega.

Até mais! 💙`
